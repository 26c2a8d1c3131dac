package shared

import (
	"context"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"hrflow/internal/domain/auth"
)

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type AuditRecorder interface {
	Record(ctx context.Context, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

// Audit records a completed transition. Failures are logged and never fail the request.
func Audit(r *http.Request, recorder AuditRecorder, user auth.UserContext, requestID, action, entityType, entityID string, before, after any) {
	if recorder == nil {
		return
	}
	if err := recorder.Record(r.Context(), user.UserID, action, entityType, entityID, requestID, ClientIP(r), before, after); err != nil {
		zap.L().Warn("audit record failed",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}
