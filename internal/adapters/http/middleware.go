package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyLanguage  ctxKey = "language"
	ctxKeyClaims    ctxKey = "auth_claims"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		ctx = context.WithValue(ctx, ctxKeyLanguage, preferredLanguage(r.Header.Get("Accept-Language")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpLogger().ErrorContext(r.Context(), "panic recovered",
					"operation", "http_panic_recovery",
					"outcome", "failure",
					"request_id", requestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}

		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		if claims, ok := claimsFromContext(r.Context()); ok {
			fields = append(fields, "subject_id", claims.SubjectID, "role", string(claims.Role))
		}
		switch {
		case statusCode >= 500:
			httpLogger().ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			httpLogger().WarnContext(r.Context(), "http request completed", fields...)
		default:
			httpLogger().InfoContext(r.Context(), "http request completed", fields...)
		}
	})
}

// clientLimiter hands out one token bucket per client address.
type clientLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const maxTrackedClients = 10000

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &clientLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
	}
}

func (l *clientLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxTrackedClients {
			l.pruneLocked(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *clientLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > time.Minute {
			delete(l.limiters, key)
		}
	}
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(readIP(r), time.Now()) {
			w.Header().Set("Retry-After", "1")
			logHTTPOperationError(r.Context(), "rate_limit", http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			writeError(r.Context(), w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeMissingBearerError(r.Context(), w, "authenticate")
			return
		}

		claims, err := h.verifier.ParseAndValidate(raw)
		if err != nil {
			writeMappedError(r.Context(), w, "authenticate", err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(ctxKeyRequestID)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func claimsFromContext(ctx context.Context) (ports.AuthClaims, bool) {
	v := ctx.Value(ctxKeyClaims)
	claims, ok := v.(ports.AuthClaims)
	return claims, ok
}

func actorFromContext(ctx context.Context) application.Actor {
	claims, _ := claimsFromContext(ctx)
	return application.Actor{
		SubjectID: claims.SubjectID,
		Role:      claims.Role,
		RequestID: requestIDFromContext(ctx),
	}
}

func bearerTokenFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// mapDomainError returns the status, stable code and English message for an
// error. Only domain-authored messages are passed through; processor and
// storage error text stays in the logs.
func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrReasonRequired):
		return http.StatusBadRequest, "REASON_REQUIRED", "a reason is required"
	case errors.Is(err, domain.ErrAmountOutOfRange):
		return http.StatusBadRequest, "AMOUNT_OUT_OF_RANGE", "amount out of range"
	case errors.Is(err, domain.ErrPayoutDestinationMissing):
		return http.StatusBadRequest, "PAYOUT_DESTINATION_MISSING", "the influencer has not finished payout onboarding"
	case errors.Is(err, domain.ErrInsufficientAuthorization):
		return http.StatusBadRequest, "INSUFFICIENT_AUTHORIZATION", "the authorized amount does not cover the order"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "you are not allowed to perform this action"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "ORDER_NOT_FOUND", "order not found"
	case errors.Is(err, domain.ErrOfferNotFound):
		return http.StatusNotFound, "OFFER_NOT_FOUND", "offer not found"
	case errors.Is(err, domain.ErrContestationNotFound):
		return http.StatusNotFound, "CONTESTATION_NOT_FOUND", "contestation not found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrProcessor):
		return http.StatusBadGateway, "PROCESSOR_ERROR", "the payment provider is unavailable, please retry later"
	case errors.Is(err, domain.ErrPaymentAlreadyCaptured):
		return http.StatusConflict, "PAYMENT_ALREADY_CAPTURED", "payment already captured"
	case errors.Is(err, domain.ErrDuplicateOperation):
		return http.StatusConflict, "DUPLICATE_OPERATION", "operation already performed"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION", "this action is not possible in the order's current status"
	case errors.Is(err, domain.ErrOrderBusy):
		return http.StatusConflict, "ORDER_BUSY", "another action is in progress for this order"
	case errors.Is(err, domain.ErrPaymentNotCapturable):
		return http.StatusConflict, "PAYMENT_NOT_CAPTURABLE", "payment cannot be captured"
	case errors.Is(err, domain.ErrContestWindowOpen):
		return http.StatusConflict, "CONTEST_WINDOW_OPEN", "a contestation can only be opened 48 hours after delivery"
	case errors.Is(err, domain.ErrContestationPending):
		return http.StatusConflict, "CONTESTATION_PENDING", "a contestation is already pending for this order"
	case errors.Is(err, domain.ErrContestationDecided):
		return http.StatusConflict, "CONTESTATION_DECIDED", "contestation already decided"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusConflict, "INSUFFICIENT_FUNDS", "insufficient available balance"
	case errors.Is(err, domain.ErrStateConflict):
		return http.StatusConflict, "STATE_CONFLICT", "the resource changed, reload and retry"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT", "conflict"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
