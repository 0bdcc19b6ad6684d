package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/verify"
)

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data, "errors": nil})
}

func newTestClient(t *testing.T, token string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL + "/", Token: token})
}

func TestClient_BearerToken(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, "tok-123", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeEnvelope(w, map[string]any{"count": 7})
	})

	n, err := c.CommentCount(context.Background(), "m1")
	if err != nil {
		t.Fatalf("CommentCount: %v", err)
	}
	if n != 7 {
		t.Errorf("count = %d, want 7", n)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !c.IsAuthenticated() {
		t.Error("expected authenticated")
	}
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("unexpected Authorization header")
		}
		writeEnvelope(w, map[string]any{"count": 0})
	})
	c.CommentCount(context.Background(), "m1")
	if c.IsAuthenticated() {
		t.Error("expected unauthenticated")
	}
}

func TestClient_ErrorDetail(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Market not found"}`))
	})

	_, err := c.Market(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != 404 || apiErr.Detail != "Market not found" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if apiErr.Temporary() {
		t.Error("404 should not be temporary")
	}
}

func TestClient_EnvelopeFailure(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"data":null,"errors":[{"message":"limit too large"}]}`))
	})

	_, err := c.CommentCount(context.Background(), "m1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Detail != "limit too large" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAPIError_Temporary(t *testing.T) {
	cases := map[int]bool{400: false, 401: false, 429: true, 500: true, 503: true}
	for status, want := range cases {
		if got := (&APIError{Status: status}).Temporary(); got != want {
			t.Errorf("status %d: Temporary = %v, want %v", status, got, want)
		}
	}
}

func TestClient_MarketDetail(t *testing.T) {
	shapes := map[string]string{
		"wrapped": `{"success":true,"data":{"market":{"id":"m1","title":"Rain?","outcomes":[{"name":"Yes","total_points":1}]}}}`,
		"bare":    `{"success":true,"data":{"id":"m1","title":"Rain?","outcomes":[{"name":"Yes","total_points":1}]}}`,
	}
	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/markets/m1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				w.Write([]byte(body))
			})
			m, err := c.Market(context.Background(), "m1")
			if err != nil {
				t.Fatal(err)
			}
			if m.ID != "m1" || m.Title != "Rain?" || len(m.Outcomes) != 1 {
				t.Errorf("unexpected market: %+v", m)
			}
		})
	}
}

func TestClient_PostComment(t *testing.T) {
	c := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/markets/m1/comments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		var req map[string]string
		json.Unmarshal(b, &req)
		if req["content"] != "hello" || req["parent_id"] != "c0" {
			t.Errorf("unexpected body %s", b)
		}
		writeEnvelope(w, map[string]any{"comment": map[string]any{"id": "c1", "content": "hello"}})
	})

	cm, err := c.PostComment(context.Background(), "m1", "  hello ", "c0")
	if err != nil {
		t.Fatal(err)
	}
	if cm.ID != "c1" {
		t.Errorf("comment id = %q", cm.ID)
	}
	if _, err := c.PostComment(context.Background(), "m1", "   ", ""); !errors.Is(err, ErrEmptyComment) {
		t.Errorf("expected ErrEmptyComment, got %v", err)
	}
}

func TestClient_ConfirmSecret(t *testing.T) {
	c := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Password {
		case "right":
			writeEnvelope(w, map[string]any{})
		case "flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Incorrect password"}`))
		}
	})
	ctx := context.Background()

	if err := c.ConfirmSecret(ctx, "right"); err != nil {
		t.Errorf("right password: %v", err)
	}
	err := c.ConfirmSecret(ctx, "wrong")
	if !errors.Is(err, verify.ErrWrongSecret) {
		t.Errorf("wrong password: expected ErrWrongSecret, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "Incorrect password") {
		t.Errorf("detail lost: %v", err)
	}
	err = c.ConfirmSecret(ctx, "flaky")
	if err == nil || errors.Is(err, verify.ErrWrongSecret) {
		t.Errorf("gateway error should be transient, got %v", err)
	}
}

func TestClient_ImplementsGateCollaborators(t *testing.T) {
	var c *Client
	var _ verify.Confirmer = c
	var _ verify.Authenticator = c
	var _ feed.Source = NewLeaderboardSource(c)
}
