package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClosed    = errors.New("webhook dispatcher closed")
	ErrQueueFull = errors.New("webhook delivery queue full")
)

const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderID        = "X-Webhook-ID"
	HeaderSignature = "X-Webhook-Signature"
)

// Dispatcher delivers signed JSON events in the background. Deliveries are
// attempted once; a full queue drops the event.
type Dispatcher struct {
	secret     string
	httpClient *http.Client
	deliveries chan DeliveryRequest
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type DeliveryRequest struct {
	ID      uuid.UUID
	URL     string
	Event   string
	Payload []byte
}

// Result is what a delivery attempt produced. Status is 0 on transport
// failure.
type Result struct {
	ID     uuid.UUID
	Status int
	Err    error
}

func NewDispatcher(secret string, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1000
	}
	d := &Dispatcher{
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		deliveries: make(chan DeliveryRequest, queueSize),
	}
	d.wg.Add(1)
	go d.processLoop()
	return d
}

// Notify marshals payload and queues it for url. It fails with ErrClosed
// after Close and with ErrQueueFull when the event had to be dropped.
func (d *Dispatcher) Notify(url, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	return d.enqueue(DeliveryRequest{ID: uuid.New(), URL: url, Event: event, Payload: data})
}

func (d *Dispatcher) enqueue(req DeliveryRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.deliveries <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting deliveries and waits for queued ones to finish.
// Calling it more than once is safe.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.deliveries)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) processLoop() {
	defer d.wg.Done()
	for req := range d.deliveries {
		logResult(req, d.deliver(req))
	}
}

func logResult(req DeliveryRequest, res Result) {
	switch {
	case res.Err != nil:
		slog.Error("webhook delivery failed", "error", res.Err, "webhook_id", res.ID, "event", req.Event)
	case res.Status >= 400:
		slog.Warn("webhook received non-success response", "status", res.Status, "webhook_id", res.ID, "event", req.Event)
	default:
		slog.Info("webhook delivered", "status", res.Status, "webhook_id", res.ID, "event", req.Event)
	}
}

func (d *Dispatcher) deliver(req DeliveryRequest) Result {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return Result{ID: req.ID, Err: fmt.Errorf("build request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderEvent, req.Event)
	httpReq.Header.Set(HeaderID, req.ID.String())
	if d.secret != "" {
		httpReq.Header.Set(HeaderSignature, Sign(req.Payload, d.secret))
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return Result{ID: req.ID, Err: err}
	}
	defer resp.Body.Close()
	return Result{ID: req.ID, Status: resp.StatusCode}
}

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches payload under secret.
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
