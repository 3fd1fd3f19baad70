package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/keys"
	"github.com/MrEthical07/authcore/store/memory"
)

func newEngine(t *testing.T) *authcore.Engine {
	t.Helper()
	pub, priv, err := keys.Generate(keys.ES256, "mw-1")
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	users := authcore.UserProviderFunc(func(_ context.Context, userID string) (authcore.UserRecord, error) {
		return authcore.UserRecord{UserID: userID, Role: "member", Active: true}, nil
	})
	engine, err := authcore.New().
		WithStore(memory.New()).
		WithKeySource(keys.BytesSource{Public: pub, Private: priv}).
		WithUserProvider(users).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func echoSubject(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(claims.Subject))
}

func TestRequireAccessToken(t *testing.T) {
	engine := newEngine(t)
	pair, err := engine.Login(context.Background(), "u-42", "u42@example.com", "member")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	handler := RequireAccessToken(engine)(http.HandlerFunc(echoSubject))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer " + pair.AccessToken, status: http.StatusOK, body: "u-42"},
		{name: "lowercase scheme", header: "bearer " + pair.AccessToken, status: http.StatusOK, body: "u-42"},
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not.a.jwt", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("expected body %q, got %q", tt.body, rec.Body.String())
			}
			if tt.status == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") != authcore.TokenType {
				t.Fatalf("expected WWW-Authenticate challenge")
			}
		})
	}
}

func TestRequireAccessTokenNilEngine(t *testing.T) {
	handler := RequireAccessToken(nil)(http.HandlerFunc(echoSubject))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	engine := newEngine(t)
	pair, err := engine.Login(context.Background(), "u-1", "", "member")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	ok := RequireAccessToken(engine)(RequireRole("member", "admin")(http.HandlerFunc(echoSubject)))
	denied := RequireAccessToken(engine)(RequireRole("admin")(http.HandlerFunc(echoSubject)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	rec := httptest.NewRecorder()
	ok.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	RequireRole("member")(http.HandlerFunc(echoSubject)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without claims, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	if _, ok := bearerToken("Bearer"); ok {
		t.Fatal("expected short header to be rejected")
	}
	if tok, ok := bearerToken("Bearer  abc "); !ok || tok != "abc" {
		t.Fatalf("expected trimmed token, got %q %v", tok, ok)
	}
}

func TestRemoteIP(t *testing.T) {
	if got := remoteIP("10.0.0.7:5123"); got != "10.0.0.7" {
		t.Fatalf("expected host only, got %q", got)
	}
	if got := remoteIP("unix-socket"); got != "unix-socket" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
