package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cassiomorais/cashdesk/internal/identity"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/cache"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	"github.com/cassiomorais/cashdesk/internal/repository/memory"
	"github.com/cassiomorais/cashdesk/internal/service"
	"github.com/cassiomorais/cashdesk/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testUser = "424242"

type harness struct {
	router http.Handler
	api    *testutil.MockAdminAPI
	store  *memory.DraftStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := testutil.NewMockAdminAPI()
	store := memory.NewDraftStore()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	wizardCfg := testutil.NewTestWizardConfig()

	memCache := cache.NewMemory()
	t.Cleanup(memCache.Stop)
	settings := service.NewSettingsService(api, memCache, wizardCfg, config.CacheConfig{SettingsTTL: time.Minute, AggregatesTTL: time.Minute}, metrics)
	verifier := service.NewVerificationService(api, store, wizardCfg.PlayerCheckBookmakers, 5*time.Millisecond, metrics)
	t.Cleanup(verifier.Stop)
	drafts := service.NewDraftService(store, settings, verifier, metrics)
	submitter := service.NewSubmitService(api, store, settings,
		config.SubmitConfig{MaxAttempts: 2, RetryDelay: time.Millisecond, Timeout: time.Second},
		wizardCfg, config.DepositConfig{RandomCents: true}, metrics,
		service.WithCentsSource(func() int64 { return 37 }))
	poller := service.NewStatusPoller(api, store, config.PollerConfig{Interval: 2 * time.Millisecond, MaxDuration: time.Second}, nil, metrics)

	persisted := identity.NewPersistedProvider("cashdesk_uid", "secret-secret-secret-secret-1234", time.Hour, false)
	router := NewRouter(RouterDeps{
		Settings:  settings,
		Drafts:    drafts,
		Verifier:  verifier,
		Submitter: submitter,
		Poller:    poller,
		Identity:  identity.Chain{identity.NewTelegramProvider("", false, 0), persisted},
		Issuer:    persisted,
		Metrics:   metrics,
		Gatherer:  reg,
		Logger:    zerolog.Nop(),
		Server:    config.ServerConfig{RateLimit: 100, RateLimitWindow: time.Minute},
		QR: config.QRConfig{
			MerchantAccount: "1180000012345678",
			MerchantName:    "CASHDESK",
			MerchantCity:    "Bishkek",
			Currency:        "417",
			Deeplinks:       map[string]string{"mbank": "https://app.mbank.kg/qr/#{payload}"},
		},
	})
	return &harness{router: router, api: api, store: store}
}

// do sends a request as testUser and returns the recorder.
func (h *harness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.HeaderUserID, testUser)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
