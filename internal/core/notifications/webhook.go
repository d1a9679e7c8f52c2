package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	EventTransferNotice = "guardian.transfer_notice"
	EventLimitExceeded  = "guardian.limit_exceeded"

	SignatureHeader = "X-IDDO-Signature"
)

// Envelope is the JSON document posted to the webhook and published on the
// message bus. The mail service renders it into an email.
type Envelope struct {
	Event   string    `json:"event"`
	To      string    `json:"to"`
	Message Message   `json:"message"`
	Notice  any       `json:"notice"`
	SentAt  time.Time `json:"sent_at"`
}

// WebhookNotifier POSTs envelopes to the mail service. A circuit breaker stops
// hammering the endpoint while it is down.
type WebhookNotifier struct {
	url     string
	secret  []byte
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	loc     *time.Location
	log     *zap.Logger
}

func NewWebhookNotifier(url, secret string, loc *time.Location, log *zap.Logger) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    url,
		secret: []byte(secret),
		// Don't let a slow mail service block the worker
		client: &http.Client{Timeout: 5 * time.Second},
		loc:    loc,
		log:    log,
	}
	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "guardian-webhook",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return n
}

func (n *WebhookNotifier) SendTransferNotice(ctx context.Context, guardianEmail string, notice TransferNotice) error {
	return n.send(ctx, Envelope{
		Event:   EventTransferNotice,
		To:      guardianEmail,
		Message: ComposeTransferNotice(notice, n.loc),
		Notice:  notice,
		SentAt:  time.Now().UTC(),
	})
}

func (n *WebhookNotifier) SendLimitExceededNotice(ctx context.Context, guardianEmail string, notice LimitNotice) error {
	return n.send(ctx, Envelope{
		Event:   EventLimitExceeded,
		To:      guardianEmail,
		Message: ComposeLimitExceededNotice(notice, n.loc),
		Notice:  notice,
		SentAt:  time.Now().UTC(),
	})
}

func (n *WebhookNotifier) send(ctx context.Context, env Envelope) error {
	_, err := n.breaker.Execute(func() (interface{}, error) {
		return nil, n.post(ctx, env)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("guardian webhook unavailable: %w", err)
	}
	return err
}

func (n *WebhookNotifier) post(ctx context.Context, env Envelope) error {
	// 1. Convert payload to JSON
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Event, err)
	}

	// 2. Prepare request
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "IDDO-Notifier/1.0")
	if len(n.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	// 3. Send
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 4. Check response
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("mail service returned error: %d", resp.StatusCode)
}

// Sign returns the signature header value for body: "sha256=<hex hmac>".
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
