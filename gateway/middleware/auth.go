package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

// CallerHeader carries the caller address when authentication is disabled.
// It exists for local development only.
const CallerHeader = "X-Escrow-Caller"

type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	// AllowAnonymousReads lets GET and HEAD requests through without a token.
	AllowAnonymousReads bool
	ClockSkew           time.Duration
}

type contextKey string

const contextKeyCaller contextKey = "gateway.caller"

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, contextKeyCaller, caller)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(common.Address)
	return caller, ok
}

// Authenticator verifies HS256 bearer tokens whose subject is the caller's
// hex address. Proving control of that address happens upstream, at token
// issuance.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		parser: jwt.NewParser(opts...),
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			if caller, ok := parseCaller(r.Header.Get(CallerHeader)); ok {
				r = r.WithContext(WithCaller(r.Context(), caller))
			}
			next.ServeHTTP(w, r)
			return
		}
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			if a.cfg.AllowAnonymousReads && isRead(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		caller, err := a.authenticate(tokenString)
		if err != nil {
			a.logger.Debug("gateway auth rejected token", "path", r.URL.Path, "error", err)
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (a *Authenticator) authenticate(tokenString string) (common.Address, error) {
	if len(a.secret) == 0 {
		return common.Address{}, errors.New("auth secret not configured")
	}
	claims := jwt.MapClaims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return common.Address{}, err
	}
	if !token.Valid {
		return common.Address{}, errors.New("token invalid")
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return common.Address{}, err
	}
	caller, ok := parseCaller(subject)
	if !ok {
		return common.Address{}, errors.New("subject is not an address")
	}
	return caller, nil
}

func parseCaller(raw string) (common.Address, bool) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, false
	}
	return common.HexToAddress(trimmed), true
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="escrow"`)
	http.Error(w, message, status)
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
