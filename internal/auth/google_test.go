package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	sharedauth "docvault/internal/shared/auth"
	"docvault/internal/users"
)

func newTestGoogle(t *testing.T, store UserStore) (*GoogleService, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600}`))
		case "/userinfo":
			_, _ = w.Write([]byte(`{"id":"1234","email":"ada@example.com","name":"Ada","picture":"https://img.test/a.png"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(provider.Close)

	svc := NewGoogleService("client", "secret", "http://api.test/api/v1/auth/google/callback", "http://ui.test/login", store)
	svc.oauthConfig.Endpoint = oauth2.Endpoint{AuthURL: provider.URL + "/auth", TokenURL: provider.URL + "/token"}
	svc.userInfoURL = provider.URL + "/userinfo"

	r := gin.New()
	svc.RegisterRoutes(r.Group("/api/v1"))
	return svc, r
}

func TestGoogleLoginUpsertsUserAndIssuesToken(t *testing.T) {
	store := users.NewService(users.NewMemoryRepo())
	svc, r := newTestGoogle(t, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/start", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatalf("missing state in %s", loc)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=c1&state="+state, nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d: %s", rec.Code, rec.Body.String())
	}
	back, _ := url.Parse(rec.Header().Get("Location"))
	if !strings.HasPrefix(back.String(), "http://ui.test/login") {
		t.Fatalf("unexpected redirect %s", back)
	}
	claims, err := sharedauth.VerifyJWT(back.Query().Get("token"))
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Sub != "google:1234" || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	user, err := store.GetByID(context.Background(), "google:1234")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if user.Role != "user" || user.FullName != "Ada" {
		t.Fatalf("unexpected user %+v", user)
	}

	// States are single use.
	if svc.stateStore.consume(state) {
		t.Fatalf("state should have been consumed")
	}
}

func TestGoogleCallbackRejectsUnknownState(t *testing.T) {
	_, r := newTestGoogle(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=c1&state=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStateStoreExpiry(t *testing.T) {
	s := newStateStore()
	s.put("old", time.Now().Add(-time.Second))
	if s.consume("old") {
		t.Fatalf("expired state accepted")
	}
}

func TestAppendToken(t *testing.T) {
	got, err := appendToken("http://ui.test/cb?x=1", "tok")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got != "http://ui.test/cb?token=tok&x=1" {
		t.Fatalf("unexpected url %s", got)
	}
	if _, err := appendToken("", "tok"); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
