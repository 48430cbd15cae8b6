// File: internal/observability/logger.go
package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/novaact-mcp/internal/config"
)

var (
	// globalLogger stores the global logger instance safely across goroutines.
	globalLogger atomic.Pointer[zap.Logger]
	// initOnce ensures that initialization happens exactly once.
	initOnce sync.Once
)

// InitializeLogger sets up the process-wide logger from configuration.
// Console output always goes to stderr: stdout carries the JSON-RPC
// stream and must never receive log lines.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, os.Stderr)
}

// Initialize builds the global logger writing console output to the given
// writer. Safe to call more than once; only the first call wins.
func Initialize(cfg config.LoggerConfig, consoleOut io.Writer) {
	initOnce.Do(func() {
		logger := newLogger(cfg, consoleOut)
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
	})
}

func newLogger(cfg config.LoggerConfig, consoleOut io.Writer) *zap.Logger {
	level := parseLevel(cfg.Level)

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(consoleOut), level),
	}
	if cfg.LogFile != "" {
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(newEncoder("json"), fileSink, level))
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}

	logger := zap.New(zapcore.NewTee(cores...), opts...)
	if cfg.ServiceName != "" {
		logger = logger.With(zap.String("service", cfg.ServiceName))
	}
	return logger
}

func parseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func newEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(format, "json") {
		return zapcore.NewJSONEncoder(encCfg)
	}
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}

// GetLogger returns the initialized global logger, or a no-op logger when
// initialization has not happened yet.
func GetLogger() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// Sync flushes buffered log entries. Sync errors on stderr are expected on
// some platforms and filtered out.
func Sync() error {
	l := globalLogger.Load()
	if l == nil {
		return nil
	}
	if err := l.Sync(); err != nil && !isIgnorableSyncError(err) {
		return err
	}
	return nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "inappropriate ioctl for device") ||
		strings.Contains(msg, "bad file descriptor")
}

// ResetForTest clears global logger state so tests can re-initialize.
func ResetForTest() {
	initOnce = sync.Once{}
	globalLogger.Store(nil)
}
