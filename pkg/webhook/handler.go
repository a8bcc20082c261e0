package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bootyhq/booty/pkg/governor"
	"github.com/bootyhq/booty/pkg/metrics"
	"github.com/bootyhq/booty/pkg/types"
)

// maxPayloadBytes bounds webhook bodies; workflow_run payloads are far
// smaller than this.
const maxPayloadBytes = 1 << 20

// EventSink consumes normalized workflow_run events. *governor.Governor
// satisfies this.
type EventSink interface {
	HandleWorkflowRun(ctx context.Context, ev types.WorkflowRunEvent) error
}

// Handler is the HTTP ingress for GitHub webhook deliveries.
type Handler struct {
	sink    EventSink
	secret  []byte
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a Handler. An empty secret disables signature
// verification (local development only).
func NewHandler(sink EventSink, secret []byte, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{sink: sink, secret: secret, logger: logger, metrics: m}
}

// Routes registers the daemon's HTTP surface on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", h.handleWebhook)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
}

func (h *Handler) count(disposition string) {
	if h.metrics != nil {
		h.metrics.WebhookRequestsTotal.WithLabelValues(disposition).Inc()
	}
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.count("method_not_allowed")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		h.count("read_error")
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if len(h.secret) > 0 {
		if err := VerifySignature(payload, h.secret, r.Header.Get("X-Hub-Signature-256")); err != nil {
			h.count("bad_signature")
			h.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	if event := r.Header.Get("X-GitHub-Event"); event != "workflow_run" {
		h.count("ignored_event")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	ev, err := ParseWorkflowRun(payload, r.Header.Get("X-GitHub-Delivery"))
	if err != nil {
		h.count("bad_payload")
		h.logger.Warn("webhook payload rejected", "err", err)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	if err := h.sink.HandleWorkflowRun(r.Context(), ev); err != nil {
		if errors.Is(err, governor.ErrQueueFull) {
			// Transient capacity condition: ask GitHub to redeliver.
			h.count("queue_full")
			http.Error(w, "queue full, retry later", http.StatusServiceUnavailable)
			return
		}
		h.count("error")
		h.logger.Error("webhook processing failed", "repo", ev.RepoFullName, "sha", ev.HeadSHA, "err", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	h.count("accepted")
	w.WriteHeader(http.StatusAccepted)
}
