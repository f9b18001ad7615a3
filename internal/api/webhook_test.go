package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/catalog-classifier/internal/commands"
	"github.com/jonesrussell/catalog-classifier/internal/config"
	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/history"
	"github.com/jonesrussell/catalog-classifier/internal/jobs"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/processor"
	"github.com/jonesrussell/catalog-classifier/internal/rules"
)

const (
	testWebhookSecret  = "webhook-secret"
	testCommandSecret  = "command-secret"
	testBackfillSecret = "backfill-secret"
)

type recordingProcessor struct {
	mu       sync.Mutex
	products []domain.Product
}

func (r *recordingProcessor) Process(_ context.Context, product *domain.Product, _ processor.Options) (*processor.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = append(r.products, *product)
	return &processor.Outcome{Status: processor.StatusProcessed}, nil
}

func (r *recordingProcessor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.products)
}

type scriptedRunner struct {
	response *commands.Response
	last     commands.Request
}

func (s *scriptedRunner) Handle(_ context.Context, req commands.Request) *commands.Response {
	s.last = req
	if s.response != nil {
		return s.response
	}
	return &commands.Response{OK: true}
}

type staticHistory struct {
	entries []history.Entry
	err     error
}

func (s *staticHistory) ListRecent(_ context.Context, _ int) ([]history.Entry, error) {
	return s.entries, s.err
}

type nopPager struct{}

func (nopPager) ListAllProducts(_ context.Context, _ string, _ int) ([]domain.Product, error) {
	return nil, nil
}

type nopProc struct{}

func (nopProc) Process(_ context.Context, _ *domain.Product, _ processor.Options) (*processor.Outcome, error) {
	return &processor.Outcome{Status: processor.StatusProcessed}, nil
}

type testEnv struct {
	router    *gin.Engine
	processor *recordingProcessor
	runner    *scriptedRunner
	queue     *jobs.Queue
	store     *rules.Store
	history   *staticHistory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rulePath := filepath.Join(t.TempDir(), "rules.yml")
	content := "rules:\n  - name: serums\n    category: Beauty > Serums\n    keywords: [serum]\n"
	require.NoError(t, os.WriteFile(rulePath, []byte(content), 0o644))
	store := rules.NewStore(rulePath, nil)
	require.NoError(t, store.Load())

	proc := &recordingProcessor{}
	runner := &scriptedRunner{}
	queue := jobs.NewQueue(nopPager{}, nopProc{}, 10, nil, nil)
	hist := &staticHistory{}

	handler := NewHandler(proc, runner, queue, store, hist, testWebhookSecret, logger.NewNop())

	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Auth.WebhookSecret = testWebhookSecret
	cfg.Auth.CommandSecret = testCommandSecret
	cfg.Auth.BackfillSecret = testBackfillSecret

	server := NewServer(handler, cfg, nil, logger.NewNop())
	return &testEnv{
		router:    server.Router(),
		processor: proc,
		runner:    runner,
		queue:     queue,
		store:     store,
		history:   hist,
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(env *testEnv, body []byte, signature string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/products/update", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(HmacHeader, signature)
	}
	env.router.ServeHTTP(w, req)
	return w
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"id": 42, "title": "Vitamin C Serum", "vendor": "Acme", "updated_at": "2026-08-01T12:00:00Z"}`)

	w := postWebhook(env, body, sign(testWebhookSecret, body))
	assert.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		return env.processor.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(42), env.processor.products[0].ID)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"id": 42}`)

	w := postWebhook(env, body, sign("wrong-secret", body))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, env.processor.count(), "rejected delivery must never reach the processor")
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	env := newTestEnv(t)
	w := postWebhook(env, []byte(`{"id": 42}`), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	env := newTestEnv(t)
	signature := sign(testWebhookSecret, []byte(`{"id": 42}`))

	w := postWebhook(env, []byte(`{"id": 43}`), signature)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`not json`)

	w := postWebhook(env, body, sign(testWebhookSecret, body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsMissingProductID(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"title": "No ID"}`)

	w := postWebhook(env, body, sign(testWebhookSecret, body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyWebhookSignatureFailsClosed(t *testing.T) {
	body := []byte("payload")
	assert.False(t, verifyWebhookSignature(sign("", body), body, ""), "empty secret must reject")
	assert.False(t, verifyWebhookSignature("not base64 !!!", body, "secret"))
	assert.True(t, verifyWebhookSignature(sign("secret", body), body, "secret"))
}
