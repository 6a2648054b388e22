package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects where a logger writes. The file sink always records debug and above.
type Options struct {
	Env          string
	Dir          string
	Console      io.Writer
	ConsoleLevel zapcore.Level
}

// InitLogger logs to stderr at info and to a JSON file under logsDir named after env
func InitLogger(env, logsDir string) (*zap.Logger, error) {
	return New(Options{Env: env, Dir: logsDir})
}

// New builds a logger teeing a colored console sink and a JSON file sink
func New(opts Options) (*zap.Logger, error) {
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if opts.Console == nil {
		// stdout is reserved for --json output
		opts.Console = os.Stderr
	}

	file, err := openRunFile(opts.Dir, opts.Env, time.Now())
	if err != nil {
		return nil, err
	}

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder(), zapcore.AddSync(opts.Console), opts.ConsoleLevel),
		zapcore.NewCore(fileEncoder(), zapcore.AddSync(file), zapcore.DebugLevel),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("environment", opts.Env)), nil
}

func openRunFile(dir, env string, started time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("%s_%s.log", env, started.Format("2006-01-02_15-04-05")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func fileEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}
