// Package logger holds the process-wide zap logger. Console output goes to
// stdout; when a file is configured a JSON copy goes to a size-rotated file.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

var (
	mu     sync.RWMutex
	global *Logger
	sink   *Rotator
)

// Options configures Setup.
type Options struct {
	Level      string // debug, info, warn, error
	Env        string // "production" switches the console to JSON
	File       string // empty disables the file sink
	MaxSizeMB  int64
	MaxBackups int
}

// Setup builds the global logger. If the log file cannot be opened it logs
// to stdout only and returns the error.
func Setup(opts Options) error {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEnc := zapcore.NewConsoleEncoder(consoleCfg)
	if opts.Env == "production" {
		consoleEnc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stdout), level),
	}

	var openErr error
	var r *Rotator
	if opts.File != "" {
		r, openErr = NewRotator(opts.File, opts.MaxSizeMB, opts.MaxBackups)
		if openErr == nil {
			fileCfg := zap.NewProductionEncoderConfig()
			fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), r, level))
		}
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	if sink != nil {
		sink.Close()
	}
	sink = r
	global = &Logger{SugaredLogger: z.Sugar()}
	mu.Unlock()

	if openErr != nil {
		Warnf("log file %s unavailable, stdout only: %v", opts.File, openErr)
	}
	return openErr
}

// Get returns the global logger, falling back to a development logger
// when Setup has not run.
func Get() *Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		z, _ := zap.NewDevelopment(zap.AddCallerSkip(1))
		global = &Logger{SugaredLogger: z.Sugar()}
	}
	return global
}

// Set replaces the global logger. Tests use it with zaptest or observer cores.
func Set(z *zap.Logger) {
	mu.Lock()
	global = &Logger{SugaredLogger: z.Sugar()}
	mu.Unlock()
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

func Debugf(template string, args ...interface{}) { Get().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { Get().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { Get().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { Get().Errorf(template, args...) }
func Fatalf(template string, args ...interface{}) { Get().Fatalf(template, args...) }

// With returns a child of the global logger.
func With(args ...interface{}) *Logger { return Get().With(args...) }

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return nil
	}
	return global.Sync()
}
