// Package intake receives chat-platform webhooks, verifies their signatures,
// and hands verified capture events to the pipeline dispatcher.
package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"inkdrop/internal/domain"
	"inkdrop/internal/platform/config"
	domainerrors "inkdrop/pkg/domain-errors"
	"inkdrop/pkg/platform/httputil"
	"inkdrop/pkg/requestcontext"
)

const (
	headerSignature = "X-Inkdrop-Signature"
	headerTimestamp = "X-Inkdrop-Timestamp"

	signatureVersion = "v1"
	maxBodyBytes     = 64 * 1024
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "inkdrop_intake_requests_total",
	Help: "Webhook deliveries by verification result",
}, []string{"result"})

// Handler serves the inbound webhook endpoint.
type Handler struct {
	secret     []byte
	maxSkew    time.Duration
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewHandler(cfg config.Intake, dispatcher *Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{
		secret:     []byte(cfg.SigningSecret),
		maxSkew:    cfg.MaxSkew,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Register mounts the webhook routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/hooks/message", h.receive)
}

type messagePayload struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
	Author    string `json:"author"`
	Channel   string `json:"channel"`
	ThreadRef string `json:"thread_ref"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		requestsTotal.WithLabelValues("read_error").Inc()
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "unable to read request body"))
		return
	}

	if err := h.verify(r, body); err != nil {
		requestsTotal.WithLabelValues("rejected").Inc()
		h.logger.WarnContext(ctx, "webhook rejected",
			"remote", r.RemoteAddr,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	var payload messagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		requestsTotal.WithLabelValues("malformed").Inc()
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "malformed message payload"))
		return
	}
	if payload.MessageID == "" {
		requestsTotal.WithLabelValues("malformed").Inc()
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "message_id is required"))
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		requestsTotal.WithLabelValues("malformed").Inc()
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "text is required"))
		return
	}

	event := domain.CaptureEvent{
		ID:         payload.MessageID,
		Text:       payload.Text,
		Author:     payload.Author,
		Channel:    payload.Channel,
		ThreadRef:  payload.ThreadRef,
		ReceivedAt: requestcontext.Now(ctx).UTC(),
	}

	h.dispatcher.Dispatch(ctx, event)
	requestsTotal.WithLabelValues("accepted").Inc()

	h.logger.InfoContext(ctx, "capture accepted",
		"event_id", event.ID,
		"channel", event.Channel,
	)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"event_id": event.ID,
	})
}

// verify checks the delivery's HMAC signature and timestamp freshness. The
// signed payload is "v1:<timestamp>:<body>", the signature a hex digest in
// X-Inkdrop-Signature.
func (h *Handler) verify(r *http.Request, body []byte) error {
	timestamp := r.Header.Get(headerTimestamp)
	signature := r.Header.Get(headerSignature)
	if timestamp == "" || signature == "" {
		return domainerrors.New(domainerrors.CodeUnauthorized, "missing signature headers")
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domainerrors.New(domainerrors.CodeUnauthorized, "invalid timestamp")
	}
	now := requestcontext.Now(r.Context())
	if skew := now.Sub(time.Unix(unix, 0)); skew > h.maxSkew || skew < -h.maxSkew {
		return domainerrors.New(domainerrors.CodeUnauthorized, "timestamp outside allowed window")
	}

	mac := hmac.New(sha256.New, h.secret)
	fmt.Fprintf(mac, "%s:%s:", signatureVersion, timestamp)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return domainerrors.New(domainerrors.CodeUnauthorized, "signature mismatch")
	}
	return nil
}
