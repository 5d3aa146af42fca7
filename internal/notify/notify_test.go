package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tools.zach/dev/sigrelay/internal/signals"
)

// fastOptions returns options pointing at url with millisecond backoff.
func fastOptions(url string, retries int) Options {
	return Options{
		URL:          url,
		RetryMax:     retries,
		Timeout:      2 * time.Second,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}
}

// ///////////////////////////////////////////////
// Delivery
// ///////////////////////////////////////////////

func TestNewDelivery(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	d := NewDelivery(signals.SIGUSR1, at)
	if d.Signal != "SIGUSR1" {
		t.Errorf("Signal = %q, want SIGUSR1", d.Signal)
	}
	if d.Number != int(signals.SIGUSR1) {
		t.Errorf("Number = %d, want %d", d.Number, int(signals.SIGUSR1))
	}
	if d.PID <= 0 {
		t.Errorf("PID = %d, want positive", d.PID)
	}
	if !d.Time.Equal(at) || d.Time.Location() != time.UTC {
		t.Errorf("Time = %v, want %v in UTC", d.Time, at)
	}
}

// ///////////////////////////////////////////////
// Post
// ///////////////////////////////////////////////

func TestPost_SendsJSON(t *testing.T) {
	var got Delivery
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	want := Delivery{Signal: "SIGHUP", Number: 1, PID: 42, Host: "box", Time: time.Unix(1700000000, 0).UTC()}
	if err := New(fastOptions(server.URL, 0)).Post(context.Background(), want); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if got != want {
		t.Errorf("body = %+v, want %+v", got, want)
	}
}

func TestPost_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := New(fastOptions(server.URL, 2)).Post(context.Background(), Delivery{Signal: "SIGUSR2"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestPost_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retries   int
		wantCalls int32
		wantErr   string
	}{
		{"server error exhausts retries", http.StatusInternalServerError, 1, 2, "giving up"},
		{"client error is not retried", http.StatusBadRequest, 3, 1, "status 400: nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte("nope\n"))
			}))
			defer server.Close()

			err := New(fastOptions(server.URL, tt.retries)).Post(context.Background(), Delivery{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Post() error = %v, want containing %q", err, tt.wantErr)
			}
			if n := calls.Load(); n != tt.wantCalls {
				t.Errorf("attempts = %d, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestPost_Disabled(t *testing.T) {
	n := New(Options{})
	if n.Enabled() {
		t.Error("Enabled() = true with empty URL")
	}
	if err := n.Post(context.Background(), Delivery{}); err != nil {
		t.Errorf("Post on disabled notifier: %v", err)
	}

	var nilNotifier *Notifier
	if err := nilNotifier.Post(context.Background(), Delivery{}); err != nil {
		t.Errorf("Post on nil notifier: %v", err)
	}
}

func TestPost_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(fastOptions(server.URL, 2)).Post(ctx, Delivery{}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
