package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

func TestExtractToken(t *testing.T) {
	re := SSSTik().TokenPattern

	tests := []struct {
		name   string
		page   string
		want   string
		wantOK bool
	}{
		{"single quoted", `<script>s_tt = 'abc123';</script>`, "abc123", true},
		{"no spaces", `s_tt='xyz'`, "xyz", true},
		{"preserves whitespace inside", `s_tt = ' padded ';`, " padded ", true},
		{"first match wins", `s_tt='one'; s_tt='two'`, "one", true},
		{"absent", `<html>nothing here</html>`, "", false},
		{"empty capture", `s_tt = ''`, "", false},
		{"double quotes do not match", `s_tt = "abc"`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractToken(re, tt.page)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractToken_NilAndGroupless(t *testing.T) {
	if _, ok := ExtractToken(nil, "s_tt='a'"); ok {
		t.Error("nil pattern should not match")
	}
	if _, ok := ExtractToken(regexp.MustCompile(`s_tt`), "s_tt='a'"); ok {
		t.Error("pattern without a group should not match")
	}
}

func TestAcquireToken_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/en" {
			t.Errorf("path = %s, want /en", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", ua)
		}
		w.Write([]byte(`<html><script>var s_tt = 'tok-42';</script></html>`))
	}))
	defer server.Close()

	c := newTestClient(t, SSSTik(), server.URL)
	tok, err := c.AcquireToken(context.Background(), newTestSession(t, c))
	if err != nil {
		t.Fatalf("AcquireToken failed: %v", err)
	}
	if tok.Kind != domain.TokenPrimary {
		t.Errorf("Kind = %q, want primary", tok.Kind)
	}
	if tok.Value != "tok-42" {
		t.Errorf("Value = %q, want tok-42", tok.Value)
	}
}

func TestAcquireToken_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>redesigned page</html>`))
	}))
	defer server.Close()

	c := newTestClient(t, SSSTik(), server.URL)
	_, err := c.AcquireToken(context.Background(), newTestSession(t, c))
	if !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("error = %v, want ErrTokenNotFound", err)
	}
	if domain.IsRetryable(err) {
		t.Error("token not found must not be retryable")
	}
}

func TestAcquireToken_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, SSSTik(), server.URL)
	_, err := c.AcquireToken(context.Background(), newTestSession(t, c))
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	var te *domain.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected TransportError with status 503, got %v", err)
	}
}

func TestAcquireToken_NoTokenFlavorSkipsRequest(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	c := newTestClient(t, TikDownloader(), server.URL)
	tok, err := c.AcquireToken(context.Background(), newTestSession(t, c))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tok.IsZero() {
		t.Errorf("token = %+v, want zero", tok)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("landing page fetched %d times, want 0", hits)
	}
}

func TestAcquireToken_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`s_tt='x'`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, SSSTik(), server.URL)
	_, err := c.AcquireToken(ctx, newTestSession(t, c))
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if domain.IsRetryable(err) {
		t.Error("canceled attempt must not be retryable")
	}
}
