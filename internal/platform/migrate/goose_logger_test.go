package migrate

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestGooseSlogLoggerPrintf(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	gooseSlogLogger{logger: logger}.Printf("OK   %s (%d ms)\n", "00001_profiles.sql", 12)

	out := buf.String()
	if !strings.Contains(out, "00001_profiles.sql") || !strings.Contains(out, "component=goose") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestGooseSlogLoggerNilLogger(t *testing.T) {
	gooseSlogLogger{}.Printf("ignored %d", 1)
}
