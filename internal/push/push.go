// Package push delivers status notifications to browser push endpoints using
// the Web Push protocol with VAPID authentication.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"driverstatus/internal/metrics"
	"driverstatus/internal/model"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 5 * time.Second

// Message is the JSON payload the service worker on the driver's device
// receives.
type Message struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	StatusKey string `json:"statusKey"`
	Plate     string `json:"plate"`
}

// Sender delivers one message to one endpoint.
type Sender interface {
	Send(ctx context.Context, to model.Endpoint, msg Message) error
}

// DeliveryError is returned when the push service answered but refused the
// message.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// Gone reports whether the push service no longer knows the subscription.
func (e *DeliveryError) Gone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// VAPID holds the application server key pair and contact subject.
type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Complete reports whether push delivery can be signed.
func (v VAPID) Complete() bool {
	return v.PublicKey != "" && v.PrivateKey != ""
}

// GenerateKeys returns a fresh VAPID key pair.
func GenerateKeys() (VAPID, error) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return VAPID{}, err
	}
	return VAPID{PublicKey: pub, PrivateKey: priv}, nil
}

// WebPush sends encrypted notifications through the endpoint's push service.
type WebPush struct {
	Keys    VAPID
	HTTP    *http.Client
	TTL     int // seconds the push service may hold an undelivered message
	Timeout time.Duration
}

func NewWebPush(keys VAPID) *WebPush {
	return &WebPush{
		Keys:    keys,
		HTTP:    &http.Client{Timeout: DefaultTimeout},
		TTL:     3600,
		Timeout: DefaultTimeout,
	}
}

// Send encrypts msg for the endpoint and posts it. Any non-2xx answer is a
// *DeliveryError.
func (w *WebPush) Send(ctx context.Context, to model.Endpoint, msg Message) (err error) {
	if to.URL == "" {
		return model.Invalid("subscription.endpoint", "is required")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode push message: %w", err)
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.PushDeliveries.WithLabelValues(outcome).Inc()
		metrics.PushLatency.WithLabelValues(outcome).Observe(float64(time.Since(start).Milliseconds()))
	}()

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: to.URL,
		Keys:     webpush.Keys{Auth: to.Keys.Auth, P256dh: to.Keys.P256dh},
	}, &webpush.Options{
		HTTPClient:      w.HTTP,
		Subscriber:      strings.TrimPrefix(w.Keys.Subject, "mailto:"),
		TTL:             w.TTL,
		Urgency:         webpush.UrgencyHigh,
		VAPIDPublicKey:  w.Keys.PublicKey,
		VAPIDPrivateKey: w.Keys.PrivateKey,
	})
	if err != nil {
		return fmt.Errorf("push to %s: %w", host(to.URL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "rejected"
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	outcome = "ok"
	return nil
}

// host keeps endpoint tokens out of logs.
func host(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "endpoint"
	}
	return u.Host
}
