package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sydlexius/artpersona/internal/strategy"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("loading fixture %s: %v", name, err)
	}
	return data
}

func testRequest() strategy.Request {
	return strategy.Request{
		ArtistID:    "a1",
		Name:        "Vincent van Gogh",
		Nationality: "Dutch",
		Era:         "Post-Impressionism",
		BirthYear:   1853,
		DeathYear:   1890,
		Biography:   "Painted in isolation.",
		Language:    "en",
		Taxonomy:    taxonomy.Summary(),
	}
}

func TestInfer(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(loadFixture(t, "completion_vangogh.json"))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "test-model", RequestsPerSecond: 100}, testLogger())
	text, err := c.Infer(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}

	if got.Model != "test-model" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if !strings.Contains(got.Messages[0].Content, "SRMC") {
		t.Error("system prompt should describe the taxonomy")
	}
	if !strings.Contains(got.Messages[1].Content, "Life: 1853-1890") {
		t.Errorf("user prompt missing life span: %q", got.Messages[1].Content)
	}

	parsed, err := strategy.ParseResponse(text)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if parsed.Primary != taxonomy.LAEF || parsed.Confidence != 84 {
		t.Errorf("parsed %s/%d, want LAEF/84", parsed.Primary, parsed.Confidence)
	}
	if parsed.Vector == nil || parsed.Vector.Get(taxonomy.Emotional) != 90 {
		t.Errorf("expected E=90 from axis lines, got %v", parsed.Vector)
	}
}

func TestInfer_NoAPIKey(t *testing.T) {
	c := New(Options{BaseURL: "http://127.0.0.1:0"}, testLogger())
	_, err := c.Infer(context.Background(), testRequest())
	var authErr *ErrAuthRequired
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *ErrAuthRequired", err)
	}
}

func TestInfer_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantAuth   bool
		retryAfter time.Duration
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantAuth: true},
		{name: "forbidden", status: http.StatusForbidden, wantAuth: true},
		{name: "rate limited", status: http.StatusTooManyRequests, retryAfter: 7 * time.Second},
		{name: "server error", status: http.StatusInternalServerError},
		{name: "empty choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "api error", status: http.StatusOK, body: `{"error":{"message":"overloaded","type":"server_error"}}`},
		{name: "garbage", status: http.StatusOK, body: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter > 0 {
					w.Header().Set("Retry-After", "7")
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(Options{BaseURL: srv.URL, APIKey: "k", RequestsPerSecond: 100}, testLogger())
			_, err := c.Infer(context.Background(), testRequest())
			if tt.wantAuth {
				var authErr *ErrAuthRequired
				if !errors.As(err, &authErr) {
					t.Fatalf("error = %v, want *ErrAuthRequired", err)
				}
				return
			}
			var unavail *ErrUnavailable
			if !errors.As(err, &unavail) {
				t.Fatalf("error = %v, want *ErrUnavailable", err)
			}
			if unavail.RetryAfter != tt.retryAfter {
				t.Errorf("RetryAfter = %v, want %v", unavail.RetryAfter, tt.retryAfter)
			}
		})
	}
}

func TestInfer_CanceledWhileWaitingForLimiter(t *testing.T) {
	c := New(Options{BaseURL: "http://127.0.0.1:0", APIKey: "k", RequestsPerSecond: 0.001}, testLogger())
	// Drain the single burst token.
	c.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Infer(ctx, testRequest())
	var unavail *ErrUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("error = %v, want *ErrUnavailable", err)
	}
}

func TestBuildMessages_TruncatesBiography(t *testing.T) {
	req := testRequest()
	req.Biography = strings.Repeat("가", maxBiographyRunes+50)
	req.BirthYear = 0
	msgs := buildMessages(req)
	if n := strings.Count(msgs[1].Content, "가"); n != maxBiographyRunes {
		t.Errorf("biography runes sent = %d, want %d", n, maxBiographyRunes)
	}
	if !strings.Contains(msgs[1].Content, "Life: ?-1890") {
		t.Errorf("expected unknown birth year marker: %q", msgs[1].Content)
	}
}

func TestBuildMessages_AttributionAndMedium(t *testing.T) {
	req := testRequest()
	req.Name = "Jan van Eyck"
	req.Attribution = "Workshop of Jan van Eyck"
	req.Medium = "Oil on panel"
	content := buildMessages(req)[1].Content
	for _, want := range []string{
		"Artist: Jan van Eyck\n",
		"Attribution: Workshop of Jan van Eyck",
		"Medium: Oil on panel\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("user message missing %q:\n%s", want, content)
		}
	}

	plain := buildMessages(testRequest())[1].Content
	if strings.Contains(plain, "Attribution:") || strings.Contains(plain, "Medium:") {
		t.Errorf("empty fields should be omitted:\n%s", plain)
	}
}
