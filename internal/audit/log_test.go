package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"keygate.io/internal/auth"
)

func captureAudit(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	original := sink
	sink = func() *zerolog.Logger { return &logger }
	t.Cleanup(func() { sink = original })
	return &buf
}

func TestLogEvent(t *testing.T) {
	buf := captureAudit(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{
		Kind:           auth.PrincipalClientApp,
		OrganizationID: "org-1",
		ClientAppID:    "app-1",
	})

	if err := LogEvent(ctx, "auth.login", map[string]any{"username": "alice"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "auth.login" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["principal_kind"] != "CLIENT_APP" {
		t.Fatalf("unexpected principal kind: %v", entry["principal_kind"])
	}
	if entry["organization_id"] != "org-1" {
		t.Fatalf("unexpected organization id: %v", entry["organization_id"])
	}
	if entry["username"] != "alice" {
		t.Fatalf("field missing or incorrect: %v", entry["username"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	captureAudit(t)

	if err := LogEvent(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestLogEventWithoutContext(t *testing.T) {
	buf := captureAudit(t)

	if err := LogEvent(context.Background(), "tokens.purged", map[string]any{"count": 3}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if _, ok := entry["request_id"]; ok {
		t.Fatal("request_id should be absent")
	}
	if _, ok := entry["principal_kind"]; ok {
		t.Fatal("principal_kind should be absent")
	}
}
