package intake

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkdrop/internal/domain"
	"inkdrop/internal/platform/config"
	"inkdrop/pkg/testutil"
)

const testSecret = "webhook-secret"

type recordingProcessor struct {
	mu     sync.Mutex
	events []domain.CaptureEvent
	block  chan struct{} // when non-nil, Process waits on it
}

func (p *recordingProcessor) Process(_ context.Context, event domain.CaptureEvent) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingProcessor) recorded() []domain.CaptureEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.CaptureEvent, len(p.events))
	copy(out, p.events)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestHandler(processor Processor) (*Handler, *Dispatcher) {
	dispatcher := NewDispatcher(processor, testLogger(), 4)
	handler := NewHandler(config.Intake{
		SigningSecret: testSecret,
		MaxSkew:       5 * time.Minute,
		MaxInFlight:   4,
	}, dispatcher, testLogger())
	return handler, dispatcher
}

func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v1:%s:", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req := testutil.NewRequestWithBody(t, http.MethodPost, "/hooks/message", string(body))
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerSignature, sign(testSecret, timestamp, body))
	return req
}

func serve(handler *Handler, req *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	handler.Register(router)
	return testutil.DoRequest(router, req)
}

func validBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"message_id": "msg-1",
		"text":       "remember to call sam",
		"author":     "alex",
		"channel":    "home",
		"thread_ref": "t-9",
	})
	require.NoError(t, err)
	return body
}

func TestHandler_AcceptsSignedDelivery(t *testing.T) {
	processor := &recordingProcessor{}
	handler, dispatcher := newTestHandler(processor)

	rec := serve(handler, signedRequest(t, validBody(t)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	testutil.DecodeBody(t, rec, &resp)
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, "msg-1", resp["event_id"])

	dispatcher.Drain()
	events := processor.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, "msg-1", events[0].ID)
	assert.Equal(t, "remember to call sam", events[0].Text)
	assert.False(t, events[0].ReceivedAt.IsZero())
}

func TestHandler_RejectsBadSignature(t *testing.T) {
	handler, _ := newTestHandler(&recordingProcessor{})

	req := signedRequest(t, validBody(t))
	req.Header.Set(headerSignature, strings.Repeat("0", 64))

	rec := serve(handler, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_RejectsMissingHeaders(t *testing.T) {
	handler, _ := newTestHandler(&recordingProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/hooks/message", strings.NewReader(string(validBody(t))))
	rec := serve(handler, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_RejectsStaleTimestamp(t *testing.T) {
	handler, _ := newTestHandler(&recordingProcessor{})

	body := validBody(t)
	stale := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/hooks/message", strings.NewReader(string(body)))
	req.Header.Set(headerTimestamp, stale)
	req.Header.Set(headerSignature, sign(testSecret, stale, body))

	rec := serve(handler, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a valid signature over a stale timestamp is still rejected")
}

func TestHandler_RejectsTamperedBody(t *testing.T) {
	handler, _ := newTestHandler(&recordingProcessor{})

	signed := signedRequest(t, validBody(t))
	tampered := strings.Replace(string(validBody(t)), "call sam", "wire money", 1)
	req := httptest.NewRequest(http.MethodPost, "/hooks/message", strings.NewReader(tampered))
	req.Header = signed.Header

	rec := serve(handler, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_RejectsEmptyText(t *testing.T) {
	handler, _ := newTestHandler(&recordingProcessor{})

	body, err := json.Marshal(map[string]string{"message_id": "msg-1", "text": "   "})
	require.NoError(t, err)

	rec := serve(handler, signedRequest(t, body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_RejectsMissingMessageID(t *testing.T) {
	handler, _ := newTestHandler(&recordingProcessor{})

	body, err := json.Marshal(map[string]string{"text": "no id"})
	require.NoError(t, err)

	rec := serve(handler, signedRequest(t, body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	block := make(chan struct{})
	processor := &recordingProcessor{block: block}
	dispatcher := NewDispatcher(processor, testLogger(), 2)

	ctx := context.Background()
	dispatcher.Dispatch(ctx, domain.CaptureEvent{ID: "a"})
	dispatcher.Dispatch(ctx, domain.CaptureEvent{ID: "b"})

	// Both slots busy: a third dispatch must block until one frees up.
	third := make(chan struct{})
	go func() {
		dispatcher.Dispatch(ctx, domain.CaptureEvent{ID: "c"})
		close(third)
	}()

	select {
	case <-third:
		t.Fatal("dispatch should block while all slots are busy")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-third
	dispatcher.Drain()
	assert.Len(t, processor.recorded(), 3)
}

func TestDispatcher_DrainWaitsForInFlight(t *testing.T) {
	processor := &recordingProcessor{}
	dispatcher := NewDispatcher(processor, testLogger(), 4)

	for i := range 8 {
		dispatcher.Dispatch(context.Background(), domain.CaptureEvent{ID: strconv.Itoa(i)})
	}
	dispatcher.Drain()
	assert.Len(t, processor.recorded(), 8)
}
