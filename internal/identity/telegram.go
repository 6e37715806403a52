package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderInitData = "X-Telegram-Init-Data"
	HeaderUserID   = "X-Telegram-User-Id"
)

var (
	ErrInitDataMissing   = errors.New("init data missing")
	ErrInitDataHash      = errors.New("init data hash mismatch")
	ErrInitDataExpired   = errors.New("init data expired")
	ErrInitDataNoUser    = errors.New("init data has no user")
	ErrInitDataMalformed = errors.New("init data malformed")
)

// TelegramProvider reads the WebApp initData blob the webview forwards.
// When validation is on, the blob must carry a valid HMAC signature made
// with the bot token; the unsigned user-id header is then ignored.
type TelegramProvider struct {
	botToken string
	validate bool
	maxAge   time.Duration
	now      func() time.Time
}

func NewTelegramProvider(botToken string, validate bool, maxAge time.Duration) *TelegramProvider {
	return &TelegramProvider{
		botToken: botToken,
		validate: validate,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

func (p *TelegramProvider) Source() Source { return SourceTelegram }

func (p *TelegramProvider) CurrentUserID(r *http.Request) (string, bool) {
	if raw := r.Header.Get(HeaderInitData); raw != "" {
		if id, err := p.Parse(raw); err == nil {
			return id, true
		}
	}
	if p.validate {
		return "", false
	}
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if isUserID(id) {
		return id, true
	}
	return "", false
}

// Parse extracts user.id from an initData query string, checking the
// signature and age when validation is enabled.
func (p *TelegramProvider) Parse(raw string) (string, error) {
	if raw == "" {
		return "", ErrInitDataMissing
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "", ErrInitDataMalformed
	}

	if p.validate {
		if err := p.verify(values); err != nil {
			return "", err
		}
	}

	var user struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return "", ErrInitDataNoUser
	}
	id := user.ID.String()
	if !isUserID(id) {
		return "", ErrInitDataNoUser
	}
	return id, nil
}

func (p *TelegramProvider) verify(values url.Values) error {
	got := values.Get("hash")
	if got == "" {
		return ErrInitDataHash
	}
	want := SignInitData(p.botToken, values)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return ErrInitDataHash
	}

	if p.maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil {
			return ErrInitDataMalformed
		}
		if p.now().Sub(time.Unix(authDate, 0)) > p.maxAge {
			return ErrInitDataExpired
		}
	}
	return nil
}

// SignInitData computes the hex hash Telegram puts in initData: HMAC-SHA256
// over the sorted key=value lines (hash excluded), keyed by
// HMAC-SHA256("WebAppData", botToken).
func SignInitData(botToken string, values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func isUserID(s string) bool {
	if s == "" || s == "0" {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil && !strings.HasPrefix(s, "-")
}
