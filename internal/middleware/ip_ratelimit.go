package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/geocheck/attendance-server-go/internal/audit"
)

// IPRateLimitMiddleware limits requests per client address. It runs ahead of
// authentication so token guessing is throttled too.
type IPRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	prefix  string
}

func NewIPRateLimitMiddleware(limiter Limiter, limitPerMin int, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limitPerMin,
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r)

		allowed, _, resetAt := m.limiter.Check(r.Context(), "ip:"+m.prefix+":"+ip, m.limit)
		if !allowed {
			secondsLeft := time.Until(time.Unix(resetAt, 0)).Seconds()
			log.Warn().Str("ip", ip).Str("scope", m.prefix).Msg("ip rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(secondsLeft)+1))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests. Please try again later.",
				"code":  "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
