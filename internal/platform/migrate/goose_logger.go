package migrate

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// gooseSlogLogger adapts goose's printf-style logger onto slog.
type gooseSlogLogger struct {
	logger *slog.Logger
}

func (l gooseSlogLogger) Printf(format string, v ...interface{}) {
	if l.logger == nil {
		return
	}
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	l.logger.Debug(msg, "component", "goose")
}

func (l gooseSlogLogger) Fatalf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	if l.logger != nil {
		l.logger.Error(msg, "component", "goose")
	}
	os.Exit(1)
}
