package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/sirupsen/logrus"
)

type fakeParser struct {
	parse func(token string) (models.Caller, error)
}

func (p fakeParser) ParseToken(token string) (models.Caller, error) {
	return p.parse(token)
}

func TestAuthMiddleware(t *testing.T) {
	parser := fakeParser{parse: func(token string) (models.Caller, error) {
		if token == "good" {
			return models.Caller{UserID: 7, IsAdmin: true}, nil
		}
		return models.Caller{}, errors.New("bad token")
	}}

	var got models.Caller
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, reached = CallerFrom(r.Context())
	})
	h := AuthMiddleware(parser)(next)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"bad token", "Bearer bad", http.StatusUnauthorized},
		{"good token", "Bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(http.MethodGet, "/cards/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("code=%d want %d", rec.Code, tc.status)
			}
			if reached != (tc.status == http.StatusOK) {
				t.Fatalf("next reached=%v", reached)
			}
		})
	}
	if got.UserID != 7 || !got.IsAdmin {
		t.Fatalf("caller=%+v", got)
	}
}

func TestCallerFromEmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := CallerFrom(req.Context()); ok {
		t.Fatal("caller found in a bare context")
	}
}

func TestLoggingMiddlewareSetsRequestID(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("code=%d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("request id header missing")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id=%q, want the incoming one", got)
	}
}
