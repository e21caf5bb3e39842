package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"meta-pixel-relay/internal/auth"
	"meta-pixel-relay/internal/config"
	"meta-pixel-relay/internal/dedup"
	"meta-pixel-relay/internal/logx"
	"meta-pixel-relay/internal/model"
	"meta-pixel-relay/internal/track"
)

type fakeSender struct {
	sent []model.Envelope
}

func (f *fakeSender) Send(_ context.Context, _ config.Settings, env model.Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}

type testRelay struct {
	router *gin.Engine
	cfg    *config.Config
	sender *fakeSender
}

func newTestRelay(t *testing.T, mutate func(*config.Config)) *testRelay {
	s := config.DefaultSettings()
	s.PixelEnabled = true
	s.CAPIEnabled = true
	s.PixelID = "123456789012345"
	s.AccessToken = "token-1"

	cfg := &config.Config{
		BotUserAgents: []string{"bot", "crawler"},
	}
	cfg.SetStore(config.NewMemoryStore(s))
	require.NoError(t, cfg.Reload())
	if mutate != nil {
		mutate(cfg)
	}

	logger := logx.New(filepath.Join(t.TempDir(), "relay.log"), false, 0, 0)
	sender := &fakeSender{}
	tracker := track.New(cfg, sender, nil, dedup.NewMemoryMarkerStore(), logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := &handlers{cfg: cfg, tracker: tracker, logger: logger}
	h.register(router)
	return &testRelay{router: router, cfg: cfg, sender: sender}
}

func (tr *testRelay) post(t *testing.T, path string, payload any, header http.Header) *httptest.ResponseRecorder {
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	for key, values := range header {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
	if secret := tr.cfg.WebhookSecret; secret != "" && req.Header.Get(auth.SignatureHeader) == "" {
		req.Header.Set(auth.SignatureHeader, auth.ComputeSignature(secret, body))
	}
	rec := httptest.NewRecorder()
	tr.router.ServeHTTP(rec, req)
	return rec
}

func TestPageViewReturnsSharedEventID(t *testing.T) {
	tr := newTestRelay(t, nil)

	rec := tr.post(t, "/v1/track/pageview", gin.H{
		"visitor": gin.H{"session_id": "sess-1", "page_url": "https://shop.example/"},
		"page_id": "home",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp trackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "sent", resp.Status)
	require.Len(t, resp.EventID, 32)
	require.Len(t, tr.sender.sent, 1)
	require.Equal(t, resp.EventID, tr.sender.sent[0].EventID)
	require.Len(t, resp.BrowserEvents, 1)
	require.Equal(t, resp.EventID, resp.BrowserEvents[0].EventID)
	require.Contains(t, resp.Script, resp.EventID)
}

func TestWebhookSignatureRequired(t *testing.T) {
	tr := newTestRelay(t, func(cfg *config.Config) { cfg.WebhookSecret = "secret-1" })

	payload := gin.H{"visitor": gin.H{"session_id": "s"}, "page_id": "home"}

	rec := tr.post(t, "/v1/track/pageview", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	bad := http.Header{}
	bad.Set(auth.SignatureHeader, "deadbeef")
	rec = tr.post(t, "/v1/track/pageview", payload, bad)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBotTrafficSkipped(t *testing.T) {
	tr := newTestRelay(t, nil)

	header := http.Header{}
	header.Set("User-Agent", "Googlebot/2.1")
	rec := tr.post(t, "/v1/track/pageview", gin.H{"visitor": gin.H{}, "page_id": "home"}, header)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp trackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "skipped", resp.Status)
	require.Empty(t, tr.sender.sent)
}

func TestPurchaseRequiresOrderID(t *testing.T) {
	tr := newTestRelay(t, nil)

	rec := tr.post(t, "/v1/track/purchase", gin.H{
		"visitor": gin.H{"session_id": "s"},
		"order":   gin.H{"id": 0},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseDedupedAcrossWebhooks(t *testing.T) {
	tr := newTestRelay(t, nil)
	payload := gin.H{
		"visitor": gin.H{"session_id": "s"},
		"order": gin.H{
			"id":       901,
			"total":    "19.99",
			"currency": "USD",
			"items": []gin.H{
				{"product": gin.H{"id": 42, "sku": "WID-9", "price": "19.99"}, "quantity": 1, "line_total": "19.99"},
			},
		},
	}

	rec := tr.post(t, "/v1/track/purchase", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, tr.sender.sent, 1)

	rec = tr.post(t, "/v1/track/purchase", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp trackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "skipped", resp.Status)
	require.Len(t, tr.sender.sent, 1)
}

func TestInvalidJSONRejected(t *testing.T) {
	tr := newTestRelay(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/track/search", bytes.NewReader([]byte("{not json")))
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rec := httptest.NewRecorder()
	tr.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPixelBootstrap(t *testing.T) {
	tr := newTestRelay(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/pixel/bootstrap", nil)
	rec := httptest.NewRecorder()
	tr.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["enabled"])
	require.Contains(t, resp["script"], "fbq('init', '123456789012345');")
	require.Contains(t, resp["noscript"], "<noscript>")
}

func TestAdminAuth(t *testing.T) {
	tr := newTestRelay(t, nil)

	// No token configured: admin surface is off.
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/settings", nil)
	rec := httptest.NewRecorder()
	tr.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	tr = newTestRelay(t, func(cfg *config.Config) { cfg.AdminToken = "admin-1" })

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/settings", nil)
	req.Header.Set(adminTokenHeader, "wrong")
	rec = httptest.NewRecorder()
	tr.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/settings", nil)
	req.Header.Set(adminTokenHeader, "admin-1")
	rec = httptest.NewRecorder()
	tr.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var settings map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	require.Equal(t, "********", settings["AccessToken"])
}

func TestAdminSelfTest(t *testing.T) {
	tr := newTestRelay(t, func(cfg *config.Config) { cfg.AdminToken = "admin-1" })

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/self-test", nil)
	req.Header.Set(adminTokenHeader, "admin-1")
	rec := httptest.NewRecorder()
	tr.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, tr.sender.sent, 1)
	require.Equal(t, model.PageView, tr.sender.sent[0].EventName)
	require.Contains(t, tr.sender.sent[0].EventID, "test_connection_")
}
