package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	contextKeyCaller      contextKey = "escrow.caller"
	contextKeyRequestInfo contextKey = "escrow.request"
)

// callerFrom returns the authenticated identity attached by the auth
// middleware.
func callerFrom(ctx context.Context) ([20]byte, bool) {
	caller, ok := ctx.Value(contextKeyCaller).([20]byte)
	return caller, ok
}

func withCaller(ctx context.Context, caller [20]byte) context.Context {
	if info, ok := ctx.Value(contextKeyRequestInfo).(*requestInfo); ok {
		info.caller = caller
		info.authenticated = true
	}
	return context.WithValue(ctx, contextKeyCaller, caller)
}

// authenticator verifies HS256 bearer tokens. The subject claim carries the
// caller identity as 0x-prefixed hex.
type authenticator struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
	logger    *slog.Logger
}

func newAuthenticator(cfg Config, logger *slog.Logger) *authenticator {
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &authenticator{
		secret:    cfg.JWTSecret,
		issuer:    strings.TrimSpace(cfg.Issuer),
		audience:  strings.TrimSpace(cfg.Audience),
		clockSkew: skew,
		logger:    logger,
	}
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		caller, err := a.verify(tokenString)
		if err != nil {
			a.logger.Warn("token validation failed", "error", err)
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}

func (a *authenticator) verify(tokenString string) ([20]byte, error) {
	if len(a.secret) == 0 {
		return [20]byte{}, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.clockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return [20]byte{}, err
	}
	if !token.Valid {
		return [20]byte{}, errors.New("token invalid")
	}
	return parseIdentity(claims.Subject)
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(r.Context())
		if _, operator := s.operators[caller]; !ok || !operator {
			writeProblem(w, http.StatusForbidden, "Forbidden", "operator privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isOperator(identity [20]byte) bool {
	_, ok := s.operators[identity]
	return ok
}
