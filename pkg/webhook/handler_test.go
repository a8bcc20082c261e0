package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootyhq/booty/pkg/governor"
	"github.com/bootyhq/booty/pkg/types"
)

const validPayload = `{
	"action": "completed",
	"workflow_run": {
		"id": 42,
		"name": "verify",
		"path": ".github/workflows/verify.yml",
		"head_sha": "abc123",
		"head_branch": "main",
		"conclusion": "success"
	},
	"repository": {"full_name": "acme/widgets"}
}`

type fakeSink struct {
	events []types.WorkflowRunEvent
	err    error
}

func (f *fakeSink) HandleWorkflowRun(_ context.Context, ev types.WorkflowRunEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sign(payload, secret string) string {
	hasher := hmac.New(sha256.New, []byte(secret))
	hasher.Write([]byte(payload))
	return "sha256=" + hex.EncodeToString(hasher.Sum(nil))
}

func postWebhook(h *Handler, payload string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handleWebhook(rec, req)
	return rec
}

func TestHandleWebhook_Accepted(t *testing.T) {
	sink := &fakeSink{}
	h := NewHandler(sink, []byte("s3cret"), testLogger(), nil)

	rec := postWebhook(h, validPayload, map[string]string{
		"X-GitHub-Event":      "workflow_run",
		"X-GitHub-Delivery":   "delivery-1",
		"X-Hub-Signature-256": sign(validPayload, "s3cret"),
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "acme/widgets", ev.RepoFullName)
	assert.Equal(t, "abc123", ev.HeadSHA)
	assert.Equal(t, int64(42), ev.RunID)
	assert.Equal(t, "delivery-1", ev.DeliveryID)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	sink := &fakeSink{}
	h := NewHandler(sink, []byte("s3cret"), testLogger(), nil)

	rec := postWebhook(h, validPayload, map[string]string{
		"X-GitHub-Event":      "workflow_run",
		"X-Hub-Signature-256": sign(validPayload, "wrong"),
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sink.events)
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	h := NewHandler(&fakeSink{}, []byte("s3cret"), testLogger(), nil)
	rec := postWebhook(h, validPayload, map[string]string{"X-GitHub-Event": "workflow_run"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleWebhook_NoSecretSkipsVerification(t *testing.T) {
	sink := &fakeSink{}
	h := NewHandler(sink, nil, testLogger(), nil)

	rec := postWebhook(h, validPayload, map[string]string{"X-GitHub-Event": "workflow_run"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, sink.events, 1)
}

func TestHandleWebhook_IgnoresOtherEvents(t *testing.T) {
	sink := &fakeSink{}
	h := NewHandler(sink, nil, testLogger(), nil)

	rec := postWebhook(h, `{"zen":"keep it simple"}`, map[string]string{"X-GitHub-Event": "ping"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, sink.events)
}

func TestHandleWebhook_BadPayload(t *testing.T) {
	h := NewHandler(&fakeSink{}, nil, testLogger(), nil)
	rec := postWebhook(h, `{"workflow_run":{}}`, map[string]string{"X-GitHub-Event": "workflow_run"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebhook_QueueFull(t *testing.T) {
	h := NewHandler(&fakeSink{err: governor.ErrQueueFull}, nil, testLogger(), nil)
	rec := postWebhook(h, validPayload, map[string]string{"X-GitHub-Event": "workflow_run"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	h := NewHandler(&fakeSink{}, nil, testLogger(), nil)
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	h.handleWebhook(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte("hello")
	secret := []byte("s3cret")

	hasher := hmac.New(sha256.New, secret)
	hasher.Write(payload)
	good := "sha256=" + hex.EncodeToString(hasher.Sum(nil))

	assert.NoError(t, VerifySignature(payload, secret, good))
	assert.Error(t, VerifySignature(payload, secret, "sha256=deadbeef"))
	assert.Error(t, VerifySignature(payload, secret, ""))
}

func TestParseWorkflowRun_MissingFields(t *testing.T) {
	_, err := ParseWorkflowRun([]byte(`{"repository":{"full_name":"acme/widgets"}}`), "d1")
	assert.Error(t, err)

	_, err = ParseWorkflowRun([]byte(`not json`), "d1")
	assert.Error(t, err)
}
