// Package notify posts signal deliveries to a webhook.
//
// Each delivery is sent as a single JSON object over a retrying HTTP client.
// A Notifier built with an empty URL is disabled and [Notifier.Post] returns
// immediately, so callers never need to check whether webhooks are set up.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/sigrelay/internal/signals"
)

// maxErrorBody caps how much of a failed response is quoted in the error.
const maxErrorBody = 512

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Options configures a [Notifier].
type Options struct {
	// URL is the webhook endpoint. Empty disables the notifier.
	URL string
	// RetryMax is the number of retries after the first attempt.
	RetryMax int
	// Timeout bounds each HTTP attempt. Zero means 10 seconds.
	Timeout time.Duration
	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	// Zero keeps the retryablehttp defaults.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Logger receives retry diagnostics. Nil keeps the client quiet.
	Logger *slog.Logger
}

// Delivery is the JSON body posted for one signal.
type Delivery struct {
	Signal string    `json:"signal"`
	Number int       `json:"number"`
	PID    int       `json:"pid"`
	Host   string    `json:"host"`
	Time   time.Time `json:"time"`
}

// NewDelivery describes sig received by this process at t.
func NewDelivery(sig signals.Signal, t time.Time) Delivery {
	host, _ := os.Hostname()
	return Delivery{
		Signal: signals.Name(sig),
		Number: int(sig),
		PID:    os.Getpid(),
		Host:   host,
		Time:   t.UTC(),
	}
}

// ///////////////////////////////////////////////
// Notifier
// ///////////////////////////////////////////////

// Notifier posts deliveries to one webhook URL.
type Notifier struct {
	url    string
	client *retryablehttp.Client
}

// New creates a Notifier from opts.
func New(opts Options) *Notifier {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.HTTPClient.Timeout = opts.Timeout
	if client.HTTPClient.Timeout <= 0 {
		client.HTTPClient.Timeout = 10 * time.Second
	}
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Logger != nil {
		client.Logger = opts.Logger
	} else {
		client.Logger = nil // suppress retryablehttp's default logging
	}
	return &Notifier{url: opts.URL, client: client}
}

// Enabled reports whether the notifier has a URL to post to.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Post sends d to the webhook. It returns nil without doing anything when
// the notifier is disabled. A response outside 2xx after all retries is an
// error.
func (n *Notifier) Post(ctx context.Context, d Delivery) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding delivery: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", n.url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sigrelay")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", n.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("POST %s: status %d: %s", n.url, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
