package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds each webhook request.
const DefaultTimeout = 10 * time.Second

// historySize is how many deliveries are kept for the API.
const historySize = 50

// Dispatcher delivers events to webhook subscribers.
type Dispatcher struct {
	webhooks []string
	client   *http.Client

	mu      sync.Mutex
	history []Delivery
}

// NewDispatcher creates a Dispatcher posting to the given webhook URLs.
func NewDispatcher(webhooks []string) *Dispatcher {
	return &Dispatcher{
		webhooks: webhooks,
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Enabled reports whether any webhook is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.webhooks) > 0
}

// Dispatch sends e to every webhook. Delivery errors are logged and recorded
// in the history, never returned. A nil Dispatcher is a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	if d == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		logrus.WithError(err).Warn("notifications: marshalling event")
		return
	}

	for _, url := range d.webhooks {
		del := Delivery{Event: e, URL: url}
		status, err := d.SendWebhook(ctx, url, payload)
		del.Status = status
		if err != nil {
			del.Error = err.Error()
			logrus.WithError(err).WithField("url", url).Warn("notifications: webhook delivery failed")
		} else {
			logrus.WithFields(logrus.Fields{"url": url, "type": e.Type}).Debug("notifications: webhook delivered")
		}
		d.remember(del)
	}
}

// DispatchAsync runs Dispatch in the background. Delivery keeps ctx values
// but not its cancellation, so it outlives the request that triggered it.
func (d *Dispatcher) DispatchAsync(ctx context.Context, e Event) {
	if !d.Enabled() {
		return
	}
	go d.Dispatch(context.WithoutCancel(ctx), e)
}

// SendWebhook POSTs payload to the given URL and returns the response status.
func (d *Dispatcher) SendWebhook(ctx context.Context, url string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// History returns recent deliveries, newest first.
func (d *Dispatcher) History() []Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Delivery, len(d.history))
	for i, del := range d.history {
		out[len(d.history)-1-i] = del
	}
	return out
}

func (d *Dispatcher) remember(del Delivery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, del)
	if len(d.history) > historySize {
		d.history = d.history[len(d.history)-historySize:]
	}
}

// BulkEvent builds the event reported after a bulk operation.
func BulkEvent(t EventType, title string, failed, total int) Event {
	msg := fmt.Sprintf("%d of %d items succeeded", total-failed, total)
	if failed > 0 {
		msg = fmt.Sprintf("Failed to update %d items", failed)
		if t == TypeImported {
			msg = fmt.Sprintf("Failed to import %d items", failed)
		}
	}
	return Event{
		Type:    t,
		Title:   title,
		Message: msg,
		Failed:  failed,
		Total:   total,
		Time:    time.Now().UTC(),
	}
}
