package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "escrow-test-secret"

var testCaller = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func signToken(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(caller.Hex()))
	})
}

func newTestAuth(allowReads bool) http.Handler {
	auth := NewAuthenticator(AuthConfig{
		Enabled:             true,
		HMACSecret:          testSecret,
		Issuer:              "escrow-test",
		AllowAnonymousReads: allowReads,
	}, nil)
	return auth.Middleware(callerEcho())
}

func TestAuthenticatorAcceptsValidToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": testCaller.Hex(),
		"iss": "escrow-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256, []byte(testSecret))

	req := httptest.NewRequest(http.MethodPost, "/v1/escrow/escrows", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	newTestAuth(false).ServeHTTP(res, req)
	if res.Code != http.StatusOK || res.Body.String() != testCaller.Hex() {
		t.Fatalf("unexpected response %d %q", res.Code, res.Body.String())
	}
}

func TestAuthenticatorRejects(t *testing.T) {
	valid := jwt.MapClaims{
		"sub": testCaller.Hex(),
		"iss": "escrow-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	cases := map[string]string{
		"missing":      "",
		"wrong secret": signToken(t, valid, jwt.SigningMethodHS256, []byte("other")),
		"wrong issuer": signToken(t, jwt.MapClaims{"sub": testCaller.Hex(), "iss": "x", "exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret)),
		"expired":      signToken(t, jwt.MapClaims{"sub": testCaller.Hex(), "iss": "escrow-test", "exp": time.Now().Add(-time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret)),
		"no expiry":    signToken(t, jwt.MapClaims{"sub": testCaller.Hex(), "iss": "escrow-test"}, jwt.SigningMethodHS256, []byte(testSecret)),
		"bad subject":  signToken(t, jwt.MapClaims{"sub": "alice", "iss": "escrow-test", "exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret)),
		"hs512":        signToken(t, valid, jwt.SigningMethodHS512, []byte(testSecret)),
	}
	for name, token := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/escrow/escrows", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res := httptest.NewRecorder()
		newTestAuth(true).ServeHTTP(res, req)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, res.Code)
		}
	}
}

func TestAuthenticatorAnonymousReads(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/escrow/config", nil)
	res := httptest.NewRecorder()
	newTestAuth(true).ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected anonymous read to pass without caller, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	newTestAuth(false).ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when anonymous reads are disabled, got %d", res.Code)
	}
}

func TestAuthenticatorDisabledUsesHeader(t *testing.T) {
	handler := NewAuthenticator(AuthConfig{}, nil).Middleware(callerEcho())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(CallerHeader, testCaller.Hex())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Body.String() != testCaller.Hex() {
		t.Fatalf("expected header caller, got %q", res.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || res.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected generated id, got %q / %q", seen, res.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "client-id" {
		t.Fatalf("expected client id to propagate, got %q", seen)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/escrow/escrows", nil)
	req.Header.Set("Origin", "https://app.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent || res.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("unexpected preflight response %d %v", res.Code, res.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unlisted origin must not be allowed")
	}
}
