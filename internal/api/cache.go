package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/auth"
	"github.com/abhishinde10/healthnexus/internal/cache"
	"github.com/abhishinde10/healthnexus/internal/metrics"
)

const invalidationTimeout = 5 * time.Second

// CacheLayer holds the read-through and invalidation middleware over one
// store.
type CacheLayer struct {
	store cache.Store
	ttl   time.Duration
	log   zerolog.Logger
	wg    sync.WaitGroup
}

func NewCacheLayer(store cache.Store, ttl time.Duration, log zerolog.Logger) *CacheLayer {
	return &CacheLayer{
		store: store,
		ttl:   ttl,
		log:   log.With().Str("component", "cache_layer").Logger(),
	}
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// IdentifierFunc picks the middle key segment, which is what invalidation
// patterns target.
type IdentifierFunc func(r *http.Request) string

// ReadThrough serves GET requests from the store when possible. Only 2xx
// responses are stored.
func (l *CacheLayer) ReadThrough(entity string, identifier IdentifierFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := cache.Key(entity, identifier(r), fingerprint(r))

			if raw, ok := l.store.Get(r.Context(), key); ok {
				var cached cachedResponse
				if err := json.Unmarshal(raw, &cached); err == nil {
					metrics.CacheHits.WithLabelValues(entity).Inc()
					if cached.ContentType != "" {
						w.Header().Set("Content-Type", cached.ContentType)
					}
					w.Header().Set("X-Cache", "HIT")
					w.WriteHeader(cached.Status)
					_, _ = w.Write(cached.Body)
					return
				}
				l.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
			}
			metrics.CacheMisses.WithLabelValues(entity).Inc()

			buf := newBufferedResponseWriter(w)
			buf.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(buf, r)

			if buf.statusCode >= 200 && buf.statusCode < 300 {
				payload, err := json.Marshal(cachedResponse{
					Status:      buf.statusCode,
					ContentType: buf.Header().Get("Content-Type"),
					Body:        buf.buf.Bytes(),
				})
				if err == nil {
					err = l.store.Set(r.Context(), key, payload, l.ttl)
				}
				if err != nil {
					metrics.CacheErrors.WithLabelValues("set").Inc()
					l.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
				}
			}

			if err := buf.flush(); err != nil {
				l.log.Debug().Err(err).Msg("write response")
			}
		})
	}
}

// InvalidateAfter deletes keys matching patterns, plus any the handler
// registered with MarkStale, once the handler succeeded. Deletion runs in
// the background and failures are only logged.
func (l *CacheLayer) InvalidateAfter(patterns ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stale := &staleSet{}
			ctx := context.WithValue(r.Context(), staleKey, stale)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if wrapped.statusCode < 200 || wrapped.statusCode >= 300 {
				return
			}

			all := append(append([]string(nil), patterns...), stale.list()...)
			if len(all) == 0 {
				return
			}
			requestID := GetRequestID(r.Context())

			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), invalidationTimeout)
				defer cancel()
				for _, p := range all {
					n, err := cache.DeletePattern(ctx, l.store, p)
					metrics.CacheInvalidations.Add(float64(n))
					if err != nil {
						metrics.CacheErrors.WithLabelValues("invalidate").Inc()
						l.log.Warn().Err(err).Str("request_id", requestID).Str("pattern", p).Msg("cache invalidation failed")
					}
				}
			}()
		})
	}
}

// Purge deletes matching keys synchronously.
func (l *CacheLayer) Purge(ctx context.Context, pattern string) (int, error) {
	n, err := cache.DeletePattern(ctx, l.store, pattern)
	metrics.CacheInvalidations.Add(float64(n))
	return n, err
}

// Wait blocks until in-flight invalidations finish.
func (l *CacheLayer) Wait() {
	l.wg.Wait()
}

type staleCtxKey struct{}

var staleKey staleCtxKey

type staleSet struct {
	mu       sync.Mutex
	patterns []string
}

func (s *staleSet) add(patterns ...string) {
	s.mu.Lock()
	s.patterns = append(s.patterns, patterns...)
	s.mu.Unlock()
}

func (s *staleSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.patterns...)
}

// MarkStale registers extra patterns for the enclosing InvalidateAfter.
// Outside of one it does nothing.
func MarkStale(ctx context.Context, patterns ...string) {
	if s, ok := ctx.Value(staleKey).(*staleSet); ok {
		s.add(patterns...)
	}
}

// fingerprint hashes what makes two GETs return the same body: method, path,
// caller and the sorted query.
func fingerprint(r *http.Request) string {
	caller := "anonymous"
	if c, ok := auth.FromContext(r.Context()); ok {
		caller = c.ID.String() + "/" + string(c.Role)
	}

	query := r.URL.Query()
	names := make([]string, 0, len(query))
	for k := range query {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('\n')
	b.WriteString(r.URL.Path)
	b.WriteByte('\n')
	b.WriteString(caller)
	for _, k := range names {
		vals := append([]string(nil), query[k]...)
		sort.Strings(vals)
		b.WriteByte('\n')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(vals, ","))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        *bytes.Buffer
	statusCode int
}

func newBufferedResponseWriter(w http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{
		writer:     w,
		buf:        &bytes.Buffer{},
		statusCode: http.StatusOK,
	}
}

func (w *bufferedResponseWriter) Header() http.Header {
	return w.writer.Header()
}

func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *bufferedResponseWriter) WriteHeader(code int) {
	w.statusCode = code
}

func (w *bufferedResponseWriter) flush() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() > 0 {
		_, err := w.writer.Write(w.buf.Bytes())
		return err
	}
	return nil
}
