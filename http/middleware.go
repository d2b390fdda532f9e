package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultUserClaim is the JWT claim carrying the caller's user id.
const DefaultUserClaim = "userId"

type AuthConfig struct {
	// JWTSecret is the HS256 key shared with the identity provider.
	JWTSecret string
	// UserClaim names the claim holding the owner id. Empty means DefaultUserClaim.
	UserClaim string
	Leeway    time.Duration
}

type ownerKey struct{}

// WithOwner returns a context carrying the authenticated owner id.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFromContext returns the owner id stored by AuthMiddleware, or "".
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// AuthMiddleware verifies an HS256 bearer token and stores the caller's id
// in the request context. A missing token is 401, an invalid one 403.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	claimName := cfg.UserClaim
	if claimName == "" {
		claimName = DefaultUserClaim
	}
	secret := []byte(cfg.JWTSecret)

	keyFunc := func(*jwt.Token) (any, error) {
		if len(secret) == 0 {
			return nil, fmt.Errorf("jwt secret not configured")
		}
		return secret, nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				HandleError(w, fmt.Errorf("%w: no token provided", ErrUnauthorized))
				return
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(token, claims, keyFunc); err != nil {
				HandleError(w, fmt.Errorf("%w: invalid or expired token", ErrForbidden))
				return
			}

			owner, _ := claims[claimName].(string)
			if owner == "" {
				HandleError(w, fmt.Errorf("%w: token has no %s claim", ErrForbidden, claimName))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// WebhookTokenMiddleware checks the shared bearer token MinIO sends with
// webhook notifications. An empty token disables the check.
func WebhookTokenMiddleware(token string) func(http.Handler) http.Handler {
	if token == "" {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := bearerToken(r)
			if got == "" {
				HandleError(w, fmt.Errorf("%w: no token provided", ErrUnauthorized))
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				HandleError(w, fmt.Errorf("%w: invalid webhook token", ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filedock_http_requests_total",
		Help: "HTTP requests handled, by route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "filedock_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// MetricsMiddleware records request counts and latency labelled by the
// matched chi route pattern, so ids in paths do not create new series.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
