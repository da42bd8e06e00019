package middleware

import (
	"context"
	"net/http"

	"github.com/hearthhq/hearth/internal/logger"
	"github.com/hearthhq/hearth/internal/server"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

const (
	LoggerKey = "logger"
)

type ContextEnhancer struct {
	Server *server.Server
}

func NewContextEnhancer(srv *server.Server) *ContextEnhancer {
	return &ContextEnhancer{
		Server: srv,
	}
}

func (ce *ContextEnhancer) EnhanceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r)

		//enhance logger with context
		contextLogger := ce.Server.Logger.With().
			Str("request_id", requestID).
			Str("ip", r.RemoteAddr).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		if txn := newrelic.FromContext(r.Context()); txn != nil {
			contextLogger = logger.WithTraceContext(contextLogger, txn)
		}

		//set enhanced logger in context
		ctx := r.Context()
		ctx = context.WithValue(ctx, LoggerKey, &contextLogger)
		r = r.WithContext(ctx)

		next.ServeHTTP(w, r)
	})

}

// GetLogger retrieves the logger from the context.
func GetLogger(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zerolog.Logger); ok {
		return logger
	}
	logger := zerolog.Nop()
	return &logger
}

// WithLogger stores a logger in the context. Workers and schedulers use this
// so their service calls log through the same path as HTTP requests.
func WithLogger(ctx context.Context, l *zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}
