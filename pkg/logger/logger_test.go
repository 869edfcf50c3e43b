package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// reset clears the package globals so each test can run Init fresh
func reset() {
	globalLogger = nil
	once = sync.Once{}
}

func TestInit_OnlyFirstCallTakesEffect(t *testing.T) {
	reset()

	if err := Init(Config{Level: "info", Format: "json"}); err != nil {
		t.Fatalf("Init() error = %v, want nil", err)
	}
	first := Get()

	if err := Init(Config{Level: "debug", Format: "text"}); err != nil {
		t.Fatalf("Init() second call error = %v, want nil", err)
	}
	if Get() != first {
		t.Error("second Init() replaced the logger, want first to win")
	}
}

func TestInit_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		t.Run("format_"+format, func(t *testing.T) {
			reset()
			if err := Init(Config{Level: "debug", Format: format}); err != nil {
				t.Fatalf("Init() error = %v, want nil", err)
			}
			Info("probe", zap.String("format", format))
		})
	}
}

func TestInit_UnknownLevelFallsBack(t *testing.T) {
	reset()

	if err := Init(Config{Level: "chatty", Format: "json"}); err != nil {
		t.Fatalf("Init() with unknown level error = %v, want nil", err)
	}
	// Info must be enabled under the fallback level
	if !Get().Core().Enabled(zapcore.InfoLevel) {
		t.Error("info level disabled, want fallback to info")
	}
}

func TestInit_WithFile(t *testing.T) {
	reset()

	logFile := filepath.Join(t.TempDir(), "logs", "service.log")
	cfg := Config{
		Level:  "info",
		Format: "json",
		File:   logFile,
	}
	if err := Init(cfg); err != nil {
		t.Fatalf("Init() with file error = %v, want nil", err)
	}

	Info("written to file")
	_ = Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry, got %q", string(data))
	}
}

func TestBeforeInit_NopLogger(t *testing.T) {
	reset()

	// Logging before Init must fall back to the nop logger, not panic
	Debug("debug before init")
	Info("info before init")
	Warn("warn before init")
	Error("error before init")

	if Get() == nil {
		t.Error("Get() returned nil before Init")
	}
	if err := Sync(); err != nil {
		t.Errorf("Sync() before Init error = %v, want nil", err)
	}
}

func TestWithAndNamed(t *testing.T) {
	reset()
	if err := Init(Config{Level: "info", Format: "json"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if With(zap.String("component", "queue")) == nil {
		t.Error("With() returned nil logger")
	}
	if Named("agent.mock") == nil {
		t.Error("Named() returned nil logger")
	}
}

func TestKVConsoleEncoder_FieldsAsKeyValue(t *testing.T) {
	enc := newKVConsoleEncoder(textEncoderConfig(false))

	entry := zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		Message: "Review queued",
	}
	fields := []zapcore.Field{
		zap.String("review_id", "rev-1"),
		zap.Int("pr_number", 42),
		zap.Bool("re_review", true),
		zap.Duration("wait", 1500*time.Millisecond),
	}

	buf, err := enc.EncodeEntry(entry, fields)
	if err != nil {
		t.Fatalf("EncodeEntry() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"[2025-03-14 09:26:53]",
		"[INFO]",
		"Review queued",
		"review_id=rev-1",
		"pr_number=42",
		"re_review=true",
		"wait=1.5s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("encoded entry missing %q, got %q", want, out)
		}
	}
}

func TestKVConsoleEncoder_ErrorField(t *testing.T) {
	enc := newKVConsoleEncoder(textEncoderConfig(false))

	entry := zapcore.Entry{Level: zapcore.ErrorLevel, Message: "Attempt failed"}
	buf, err := enc.EncodeEntry(entry, []zapcore.Field{zap.Error(os.ErrNotExist)})
	if err != nil {
		t.Fatalf("EncodeEntry() error = %v", err)
	}
	if !strings.Contains(buf.String(), "error=file does not exist") {
		t.Errorf("error field not rendered, got %q", buf.String())
	}
}

func TestKVConsoleEncoder_Clone(t *testing.T) {
	enc := newKVConsoleEncoder(textEncoderConfig(false))
	clone := enc.Clone()
	if clone == nil {
		t.Fatal("Clone() returned nil")
	}

	buf, err := clone.EncodeEntry(zapcore.Entry{Message: "from clone"}, nil)
	if err != nil {
		t.Fatalf("EncodeEntry() on clone error = %v", err)
	}
	if !strings.Contains(buf.String(), "from clone") {
		t.Errorf("clone output missing message, got %q", buf.String())
	}
}

func TestTeeWithFile_BadDirectoryKeepsConsole(t *testing.T) {
	// A file under an uncreatable directory must degrade to console only
	blocker := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{File: filepath.Join(blocker, "sub", "service.log")}
	console := zapcore.NewNopCore()
	core := teeWithFile(console, zapcore.NewJSONEncoder(jsonEncoderConfig()), cfg, zapcore.InfoLevel)
	if core != console {
		t.Error("expected the console core unchanged when the log directory cannot be created")
	}
}
