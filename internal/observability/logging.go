// Package observability wires structured logging for the CLI and server
// surfaces.
//
// Two loggers are exposed: CLILogger writes human-oriented output for
// command-line runs, ServerLogger writes structured JSON for the HTTP
// server. Both default to no-ops so packages can log unconditionally
// before Init has run (tests, early startup).
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger for command-line output.
var CLILogger = zap.NewNop()

// ServerLogger is the logger for HTTP server and pipeline internals.
var ServerLogger = zap.NewNop()

// Init builds the process loggers from the configured level and profile.
//
// Profile "STRUCTURED" emits JSON, anything else emits console encoding.
// Level accepts the standard zap level names (debug, info, warn, error).
func Init(level, profile string) error {
	parsed, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	server := zap.NewProductionConfig()
	server.Level = zap.NewAtomicLevelAt(parsed)
	if !strings.EqualFold(profile, "STRUCTURED") {
		server.Encoding = "console"
	}
	serverLogger, err := server.Build()
	if err != nil {
		return fmt.Errorf("build server logger: %w", err)
	}

	cli := zap.NewDevelopmentConfig()
	cli.Level = zap.NewAtomicLevelAt(parsed)
	cli.DisableStacktrace = true
	cliLogger, err := cli.Build()
	if err != nil {
		return fmt.Errorf("build cli logger: %w", err)
	}

	ServerLogger = serverLogger
	CLILogger = cliLogger
	return nil
}

// Sync flushes any buffered log entries. Best-effort; errors from
// syncing stderr/stdout sinks are ignored.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}
