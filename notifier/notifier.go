package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxAttempts is the number of deliveries tried before giving up.
const DefaultMaxAttempts = 5

// Observer receives delivery outcomes. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveNotifyAttempt(ok bool)
	ObserveNotification(delivered bool)
}

// Options configures a Notifier.
type Options struct {
	BaseDelay time.Duration
	Timeout   time.Duration
	Observer  Observer
	// Sleep replaces time.Sleep in tests.
	Sleep func(time.Duration)
}

// Notifier posts completion payloads to caller-supplied callback URLs.
type Notifier struct {
	client    *http.Client
	baseDelay time.Duration
	observer  Observer
	sleep     func(time.Duration)
}

// New builds a Notifier.
func New(opts Options) *Notifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Notifier{
		client:    &http.Client{Timeout: timeout},
		baseDelay: baseDelay,
		observer:  opts.Observer,
		sleep:     sleep,
	}
}

// Backoff is the wait after the given zero-based failed attempt.
func (n *Notifier) Backoff(attempt int) time.Duration {
	return n.baseDelay * time.Duration(1<<uint(attempt))
}

// Notify POSTs payload as JSON to url, retrying any failure with exponential
// backoff. It reports whether a 2xx response was received within
// maxAttempts tries and never returns an error.
func (n *Notifier) Notify(ctx context.Context, url string, payload interface{}, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notifier: cannot encode payload for %s: %v", url, err)
		n.observeFinal(false)
		return false
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := n.post(ctx, url, body)
		n.observeAttempt(err == nil)
		if err == nil {
			log.Printf("notifier: %s notified successfully (attempt %d)", url, attempt+1)
			n.observeFinal(true)
			return true
		}
		log.Printf("notifier: attempt %d/%d to %s failed: %v", attempt+1, maxAttempts, url, err)

		if attempt < maxAttempts-1 {
			delay := n.Backoff(attempt)
			log.Printf("notifier: retrying in %v", delay)
			n.sleep(delay)
		}
	}

	log.Printf("notifier: failed to notify %s after %d attempts", url, maxAttempts)
	n.observeFinal(false)
	return false
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

func (n *Notifier) observeAttempt(ok bool) {
	if n.observer != nil {
		n.observer.ObserveNotifyAttempt(ok)
	}
}

func (n *Notifier) observeFinal(delivered bool) {
	if n.observer != nil {
		n.observer.ObserveNotification(delivered)
	}
}
