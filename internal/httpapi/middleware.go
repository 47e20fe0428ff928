package httpapi

import (
	"net/http"
	"time"

	"relay_bot/internal/logger"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// requestLogger 请求日志；/metrics 抓取频繁，降为 debug
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			entry := logger.L().WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"latency":    time.Since(start).String(),
				"request_id": chimw.GetReqID(r.Context()),
			})
			if r.URL.Path == "/metrics" {
				entry.Debug("request completed")
				return
			}
			entry.Info("request completed")
		}()

		next.ServeHTTP(ww, r)
	})
}
