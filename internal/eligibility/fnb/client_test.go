package fnb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, APIKey: "secret", MaxRetries: 2, Backoff: time.Millisecond, Logger: logging.Nop()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestQueryEligible(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.URL.Query().Get("dni") != "12345678" {
			t.Errorf("unexpected dni %q", r.URL.Query().Get("dni"))
		}
		_, _ = w.Write([]byte(`{"data":{"eligible":true,"credit_line":5000,"customer_name":" Juan Perez ","nse":"C"}}`))
	})

	res, err := c.Query(context.Background(), "12345678")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Status != eligibility.StatusEligible || res.Credit != 5000 || res.Name != "Juan Perez" || res.Segment != "fnb" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestQueryNotFoundIsNotEligible(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	res, err := c.Query(context.Background(), "12345678")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Status != eligibility.StatusNotEligible {
		t.Fatalf("expected not eligible, got %+v", res)
	}
}

func TestQueryAuthFailureIsTypedAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`usuario bloqueado`))
	})
	_, err := c.Query(context.Background(), "12345678")
	var perr *eligibility.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if perr.Category != eligibility.CategoryBlocked || perr.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected error %+v", perr)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retries on 403, got %d calls", calls.Load())
	}
}

func TestQueryRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"eligible":false}}`))
	})
	res, err := c.Query(context.Background(), "12345678")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Status != eligibility.StatusNotEligible || calls.Load() != 3 {
		t.Fatalf("unexpected result %+v after %d calls", res, calls.Load())
	}
}

func TestQueryGarbageBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err := c.Query(context.Background(), "12345678")
	if eligibility.Classify(err) != eligibility.CategoryInvalidResponse {
		t.Fatalf("expected invalid response category, got %v", err)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Fatalf("expected base url error")
	}
	if _, err := New(Config{BaseURL: "http://x"}); err == nil {
		t.Fatalf("expected api key error")
	}
}
