// Package logger provides structured logging capabilities for the application.
// It wraps uber-go/zap for high-performance, leveled logging with JSON output support.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Config holds the logger configuration
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `yaml:"level"`
	// Format is the output format (json, text)
	Format string `yaml:"format"`
	// File is the log file path. When set, logs go to both console and
	// the rotated file; when empty, console only.
	File string `yaml:"file"`
	// MaxSize is the maximum size in megabytes of the log file before rotation
	MaxSize int `yaml:"max_size"`
	// MaxAge is the maximum number of days to retain old log files
	MaxAge int `yaml:"max_age"`
	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int `yaml:"max_backups"`
	// Compress determines if rotated log files are gzipped
	Compress bool `yaml:"compress"`
	// AccessLog gates per-request info logs in the HTTP middleware.
	// Requests with status >= 400 are logged regardless.
	AccessLog bool `yaml:"access_log"`
}

// Init initializes the global logger. Only the first call takes effect;
// before Init the package functions write to a no-op logger.
func Init(cfg Config) error {
	once.Do(func() {
		globalLogger = build(cfg)
	})
	return nil
}

func build(cfg Config) *zap.Logger {
	// Unknown level strings fall back to info rather than failing startup
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 100
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 7
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}

	var consoleEnc, fileEnc zapcore.Encoder
	if cfg.Format == "text" {
		// Console gets ANSI level colors, the file copy does not
		consoleEnc = newKVConsoleEncoder(textEncoderConfig(true))
		fileEnc = newKVConsoleEncoder(textEncoderConfig(false))
	} else {
		consoleEnc = zapcore.NewJSONEncoder(jsonEncoderConfig())
		fileEnc = consoleEnc
	}

	consoleCore := zapcore.NewCore(consoleEnc, zapcore.AddSync(os.Stdout), level)
	core := teeWithFile(consoleCore, fileEnc, cfg, level)

	// Caller skip is applied per call in the package-level wrappers, not here,
	// so direct users of Get() report the right caller
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// teeWithFile combines the console core with a lumberjack-rotated file core
// when a log file is configured. A failure to create the log directory keeps
// console logging alive instead of failing startup.
func teeWithFile(console zapcore.Core, enc zapcore.Encoder, cfg Config, level zapcore.Level) zapcore.Core {
	if cfg.File == "" {
		return console
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v, using console only\n", err)
		return console
	}

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	return zapcore.NewTee(console, zapcore.NewCore(enc, fileWriter, level))
}

// textEncoderConfig is the shared layout of the text format:
// [2006-01-02 15:04:05] [INFO] caller msg key=value ...
func textEncoderConfig(colored bool) zapcore.EncoderConfig {
	levelEncoder := bracketLevelEncoder
	if colored {
		levelEncoder = bracketColorLevelEncoder
	}
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          zapcore.OmitKey,
		CallerKey:        "caller",
		FunctionKey:      zapcore.OmitKey,
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      levelEncoder,
		EncodeTime:       bracketTimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// bracketTimeEncoder formats time as [2006-01-02 15:04:05]
func bracketTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + t.Format("2006-01-02 15:04:05") + "]")
}

// bracketLevelEncoder formats the level as [INFO]
func bracketLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + level.CapitalString() + "]")
}

// bracketColorLevelEncoder formats the level as [INFO] with an ANSI color
func bracketColorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color string
	switch level {
	case zapcore.DebugLevel:
		color = "\x1b[35m" // magenta
	case zapcore.InfoLevel:
		color = "\x1b[34m" // blue
	case zapcore.WarnLevel:
		color = "\x1b[33m" // yellow
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		color = "\x1b[31m" // red
	default:
		color = "\x1b[0m"
	}
	enc.AppendString(color + "[" + level.CapitalString() + "]" + "\x1b[0m")
}

// Get returns the global logger, or a no-op logger before Init.
func Get() *zap.Logger {
	if globalLogger == nil {
		return zap.NewNop()
	}
	return globalLogger
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Named creates a child logger with the given name
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

// skipCaller unwinds one frame so the package-level wrappers report
// their caller rather than this file
func skipCaller() *zap.Logger {
	return Get().WithOptions(zap.AddCallerSkip(1))
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	skipCaller().Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	skipCaller().Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	skipCaller().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	skipCaller().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	skipCaller().Fatal(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// kvConsoleEncoder renders the text format. The embedded console encoder
// produces the time/level/caller/message prefix; fields are appended as
// key=value pairs instead of the console encoder's JSON tail.
type kvConsoleEncoder struct {
	zapcore.Encoder
	cfg zapcore.EncoderConfig
}

func newKVConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &kvConsoleEncoder{
		Encoder: zapcore.NewConsoleEncoder(cfg),
		cfg:     cfg,
	}
}

func (e *kvConsoleEncoder) Clone() zapcore.Encoder {
	return &kvConsoleEncoder{
		Encoder: e.Encoder.Clone(),
		cfg:     e.cfg,
	}
}

func (e *kvConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	// The stack trace is held back so fields land next to the message,
	// not after a multi-line trace.
	stack := entry.Stack
	entry.Stack = ""

	line, err := e.Encoder.EncodeEntry(entry, nil)
	if err != nil {
		return nil, err
	}
	line.TrimNewline()

	appendFields(line, e.cfg.ConsoleSeparator, fields)

	if stack != "" && e.cfg.StacktraceKey != zapcore.OmitKey {
		line.AppendByte('\n')
		line.AppendString(stack)
	}

	ending := e.cfg.LineEnding
	if ending == "" {
		ending = zapcore.DefaultLineEnding
	}
	line.AppendString(ending)
	return line, nil
}

// appendFields renders fields as key=value pairs. Values are decoded
// through a map encoder first so every zap field type is handled.
func appendFields(buf *buffer.Buffer, sep string, fields []zapcore.Field) {
	if len(fields) == 0 {
		return
	}

	m := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(m)
	}
	for _, f := range fields {
		if f.Type == zapcore.SkipType {
			continue
		}
		buf.AppendString(sep)
		buf.AppendString(f.Key)
		buf.AppendByte('=')
		appendValue(buf, m.Fields[f.Key])
	}
}

func appendValue(buf *buffer.Buffer, v any) {
	switch v := v.(type) {
	case nil:
	case string:
		buf.AppendString(v)
	case time.Duration:
		buf.AppendString(v.String())
	case time.Time:
		buf.AppendString(v.Format(time.RFC3339))
	case error:
		buf.AppendString(v.Error())
	case fmt.Stringer:
		buf.AppendString(v.String())
	default:
		fmt.Fprint(buf, v)
	}
}
