package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink delivers one alert to an external channel.
type Sink interface {
	Send(ctx context.Context, title, message string) error
}

// NoopSink swallows alerts. Used when no webhook is configured and in
// backtests.
type NoopSink struct{}

func (NoopSink) Send(context.Context, string, string) error { return nil }

// WebhookSink posts alerts as JSON to a configured URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink for the given webhook URL.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookSink) Send(ctx context.Context, title, message string) error {
	payload, err := json.Marshal(map[string]string{
		"title":   title,
		"message": message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

type alert struct {
	title   string
	message string
}

// Notifier fans alerts out to a sink through a bounded worker pool, so a slow
// webhook never blocks the trading path. Alerts are dropped with a warning
// when the queue is full.
type Notifier struct {
	sink   Sink
	queue  chan alert
	wg     sync.WaitGroup
	cancel context.CancelFunc
	logger *zap.SugaredLogger
}

// NewNotifier starts the worker pool.
func NewNotifier(sink Sink, workers, queueSize int, logger *zap.SugaredLogger) *Notifier {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		sink:   sink,
		queue:  make(chan alert, queueSize),
		cancel: cancel,
		logger: logger,
	}

	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.worker(ctx)
	}
	return n
}

func (n *Notifier) worker(ctx context.Context) {
	defer n.wg.Done()
	for a := range n.queue {
		if err := n.sink.Send(ctx, a.title, a.message); err != nil {
			n.logger.Warnf("Failed to deliver notification %q: %v", a.title, err)
		}
	}
}

// Notify enqueues an alert without blocking the caller.
func (n *Notifier) Notify(title, message string) {
	select {
	case n.queue <- alert{title: title, message: message}:
	default:
		n.logger.Warnf("Notification queue full, dropping alert %q", title)
	}
}

// Close drains the queue and stops the workers.
func (n *Notifier) Close() {
	close(n.queue)
	n.wg.Wait()
	n.cancel()
}
