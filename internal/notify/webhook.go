package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"tradelink/internal/events"
	"tradelink/internal/settings"
)

const webhookTimeout = 5 * time.Second

// Webhook forwards alert and error lines to a Discord-compatible webhook.
// Delivery runs on its own worker goroutine with a short timeout so a slow
// webhook can never stall trade processing.
type Webhook struct {
	store  *settings.Store
	client *http.Client
	queue  chan events.LogLine
	done   chan struct{}
}

type webhookMessage struct {
	Content string `json:"content"`
}

// NewWebhook builds the sink; Start must be called before lines flow.
func NewWebhook(store *settings.Store) *Webhook {
	return &Webhook{
		store:  store,
		client: &http.Client{Timeout: webhookTimeout},
		queue:  make(chan events.LogLine, 64),
		done:   make(chan struct{}),
	}
}

// Start subscribes to log lines on the bus and drains them until ctx ends.
func (w *Webhook) Start(ctx context.Context, bus *events.Bus) {
	stream, unsub := bus.Subscribe(events.EventLogLine, 64)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				if line, ok := msg.(events.LogLine); ok {
					w.Enqueue(line)
				}
			}
		}
	}()

	go w.drain(ctx)
}

// Enqueue hands a line to the delivery worker, dropping when the queue is
// full; webhook delivery is best-effort by design.
func (w *Webhook) Enqueue(line events.LogLine) {
	select {
	case w.queue <- line:
	default:
	}
}

func (w *Webhook) drain(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-w.queue:
			if err := w.deliver(ctx, line); err != nil {
				log.Printf("[WEBHOOK] delivery failed: %v", err)
			}
		}
	}
}

func (w *Webhook) deliver(ctx context.Context, line events.LogLine) error {
	switch line.Kind {
	case events.KindAlert:
		if !w.store.WebhookAlerts() {
			return nil
		}
	case events.KindError:
		if !w.store.WebhookErrors() {
			return nil
		}
	default:
		return nil
	}

	url := w.store.WebhookURL()
	if url == "" {
		return nil
	}

	raw, err := json.Marshal(webhookMessage{Content: line.Message})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// Done is closed when the drain worker has exited.
func (w *Webhook) Done() <-chan struct{} { return w.done }
