package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/chatsync/internal/config"
	applog "github.com/vovakirdan/chatsync/internal/log"
)

func TestHubOptionsTrustsClaimsOnlyWithoutRequiredTokens(t *testing.T) {
	cfg := config.Default()
	if !HubOptions(&cfg).TrustClaimedIdentity {
		t.Fatal("claimed identity should be trusted when tokens are optional")
	}
	cfg.JWTRequired = true
	opts := HubOptions(&cfg)
	if opts.TrustClaimedIdentity {
		t.Fatal("claimed identity trusted with jwt_required")
	}
	if opts.SendBuffer != cfg.SendBuffer || opts.MembershipTTL != cfg.MembershipTTL {
		t.Fatalf("options not mapped: %+v", opts)
	}
}

func TestJWTConfig(t *testing.T) {
	cfg := config.Default()
	cfg.JWTSecret = "s3cret"
	jwtCfg := JWTConfig(&cfg)
	if string(jwtCfg.Secret) != "s3cret" || jwtCfg.Issuer != cfg.JWTIssuer || jwtCfg.Audience != cfg.JWTAudience {
		t.Fatalf("unexpected jwt config: %+v", jwtCfg)
	}
	if jwtCfg.TTL != 24*time.Hour {
		t.Fatalf("ttl = %v", jwtCfg.TTL)
	}
}

func TestAPIDisabledWithoutSecret(t *testing.T) {
	cfg := config.Default()
	cfg.DatabasePath = ":memory:"
	a, err := New(&cfg, applog.Nop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.cleanup)

	claims := jwt.RegisteredClaims{
		Subject:   "victim",
		Issuer:    cfg.JWTIssuer,
		Audience:  jwt.ClaimStrings{cfg.JWTAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte{})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	requests := []struct{ method, path string }{
		{http.MethodGet, "/api/chats"},
		{http.MethodGet, "/api/chats/c1/messages"},
		{http.MethodPost, "/api/chats/c1/clear-unread"},
		{http.MethodGet, "/api/presence"},
	}
	for _, r := range requests {
		req := httptest.NewRequest(r.method, r.path, nil)
		req.Header.Set("Authorization", "Bearer "+forged)
		resp := httptest.NewRecorder()
		a.server.Handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected status 503, got %d", r.method, r.path, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("health: expected status 200, got %d", resp.Code)
	}
}
