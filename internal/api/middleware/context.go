package middleware

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const callerKey contextKey = "caller"

func setCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// GetCaller returns the authenticated caller identifier, if any.
func GetCaller(r *http.Request) (string, bool) {
	caller, ok := r.Context().Value(callerKey).(string)
	return caller, ok
}

// callerOrAddr identifies the caller for rate limiting, falling back to the
// client address when authentication is disabled.
func callerOrAddr(r *http.Request) string {
	if caller, ok := GetCaller(r); ok {
		return caller
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
