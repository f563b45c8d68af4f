package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/souqline/backend/internal/auth"
)

type stubValidator struct {
	principal *auth.Principal
	err       error
	gotToken  string
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) (*auth.Principal, error) {
	s.gotToken = token
	return s.principal, s.err
}

// okHandler echoes the principal's country for assertions.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if p := PrincipalFromCtx(r.Context()); p != nil {
		_, _ = w.Write([]byte(p.Country))
	}
})

func TestAuthenticate_ValidToken(t *testing.T) {
	v := &stubValidator{principal: &auth.Principal{AccountID: uuid.New(), Country: "KZ"}}
	h := Authenticate(v)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer tok-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "KZ" {
		t.Errorf("principal not in context, body %q", rec.Body.String())
	}
	if v.gotToken != "tok-123" {
		t.Errorf("token passed = %q", v.gotToken)
	}
}

func TestAuthenticate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		header string
		err    error
	}{
		{"missing header", "", nil},
		{"basic scheme", "Basic abc", nil},
		{"invalid token", "Bearer bad", auth.ErrInvalidToken},
		{"unknown account", "Bearer gone", auth.ErrUnknownAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := Authenticate(&stubValidator{err: tc.err})(okHandler)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestAuthenticate_StoreFailureIsServerError(t *testing.T) {
	v := &stubValidator{err: fmt.Errorf("load account: %w", errors.New("connection refused"))}
	h := Authenticate(v)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		name      string
		principal *auth.Principal
		want      int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"regular user", &auth.Principal{AccountID: uuid.New()}, http.StatusForbidden},
		{"admin", &auth.Principal{AccountID: uuid.New(), IsAdmin: true}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tc.principal))
			}
			rec := httptest.NewRecorder()
			RequireAdmin(okHandler).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
