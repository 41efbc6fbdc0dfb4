// Package audit emits structured audit events for security-relevant
// operations: signups, logins, token rotation, revocation and SSO exchanges.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"keygate.io/internal/auth"
	"keygate.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// sink is swapped out in tests to capture output.
var sink = func() *zerolog.Logger { return obs.Logger() }

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and principal context.
// Field values must be JSON-serializable.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}

	entry := sink().Info().
		Str("type", "audit").
		Str("event", event)
	if rid := requestIDFromContext(ctx); rid != "" {
		entry = entry.Str("request_id", rid)
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		entry = entry.Str("principal_kind", principal.Kind.String())
		if principal.OrganizationID != "" {
			entry = entry.Str("organization_id", principal.OrganizationID)
		}
		if principal.ClientAppID != "" {
			entry = entry.Str("client_app_id", principal.ClientAppID)
		}
	}
	if len(fields) > 0 {
		entry = entry.Fields(fields)
	}
	entry.Msg("audit event")
	return nil
}
