package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const HeaderDeviceID = "X-Device-Id"

const issuer = "cashdesk"

// PersistedProvider keeps a per-device identity in a signed cookie, the
// server-side stand-in for the webview's local storage id.
type PersistedProvider struct {
	cookieName  string
	secret      []byte
	ttl         time.Duration
	trustHeader bool
}

func NewPersistedProvider(cookieName, secret string, ttl time.Duration, trustHeader bool) *PersistedProvider {
	return &PersistedProvider{
		cookieName:  cookieName,
		secret:      []byte(secret),
		ttl:         ttl,
		trustHeader: trustHeader,
	}
}

func (p *PersistedProvider) Source() Source { return SourcePersisted }

func (p *PersistedProvider) CurrentUserID(r *http.Request) (string, bool) {
	if c, err := r.Cookie(p.cookieName); err == nil {
		if id, err := p.parse(c.Value); err == nil {
			return id, true
		}
	}
	if p.trustHeader {
		if id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(HeaderDeviceID))); err == nil {
			return id.String(), true
		}
	}
	return "", false
}

// Issue mints a new device id and sets the signed cookie on w.
func (p *PersistedProvider) Issue(w http.ResponseWriter) (string, error) {
	id := uuid.NewString()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  id,
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if p.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(p.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign device token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     p.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(p.ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	return id, nil
}

func (p *PersistedProvider) parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid device token")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", errors.New("invalid device id")
	}
	return claims.Subject, nil
}
