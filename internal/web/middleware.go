package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const headerRequestId = `X-Request-ID`

// requestId sets a request id unless the client sent one.
func requestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqId := r.Header.Get(headerRequestId)
		if reqId == `` {
			reqId = uuid.NewString()
			r.Header.Set(headerRequestId, reqId)
		}
		w.Header().Set(headerRequestId, reqId)
		next.ServeHTTP(w, r)
	})
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				mudlog.Error("Web", "path", r.URL.Path, "panic", rec)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		mudlog.Debug("Web",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start).String(),
			"requestId", r.Header.Get(headerRequestId),
		)
	})
}

// requireToken guards the API with the admin token when one is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := string(s.cfg.AdminToken)
		if want == `` {
			next.ServeHTTP(w, r)
			return
		}

		got, ok := strings.CutPrefix(r.Header.Get(`Authorization`), `Bearer `)
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeJSONError(w, http.StatusUnauthorized, `unauthorized`, `a valid bearer token is required`)
			return
		}
		next.ServeHTTP(w, r)
	})
}
