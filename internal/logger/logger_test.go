package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogLevels(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		level    string
		expected []string
		excluded []string
	}{
		{
			level:    "error",
			expected: []string{"ERROR"},
			excluded: []string{"WARN", "INFO", "DEBUG"},
		},
		{
			level:    "warn",
			expected: []string{"ERROR", "WARN"},
			excluded: []string{"INFO", "DEBUG"},
		},
		{
			level:    "info",
			expected: []string{"ERROR", "WARN", "INFO"},
			excluded: []string{"DEBUG"},
		},
		{
			level:    "debug",
			expected: []string{"ERROR", "WARN", "INFO", "DEBUG"},
			excluded: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logFile := filepath.Join(tempDir, tt.level+".log")

			cfg := FileConfig{
				Path:       logFile,
				MaxSizeMB:  10,
				MaxBackups: 1,
				MaxAgeDays: 1,
				Compress:   false,
			}

			l, err := Build(tt.level, cfg, nil)
			if err != nil {
				t.Fatalf("failed to build logger: %v", err)
			}

			l.Debug("debug message")
			l.Info("info message")
			l.Warn("warn message")
			l.Error("error message")
			_ = l.Sync()

			content, err := os.ReadFile(logFile)
			if err != nil {
				t.Fatalf("failed to read log file: %v", err)
			}
			logContent := string(content)

			for _, exp := range tt.expected {
				if !strings.Contains(logContent, exp) {
					t.Errorf("expected %s in log output", exp)
				}
			}
			for _, exc := range tt.excluded {
				if strings.Contains(logContent, exc) {
					t.Errorf("unexpected %s in log output for level %s", exc, tt.level)
				}
			}
		})
	}
}

func TestBuildConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	l, err := Build("info", FileConfig{}, &buf)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	l.Named("texture").Info("compiled image")
	_ = l.Sync()

	out := buf.String()
	if !strings.Contains(out, "compiled image") || !strings.Contains(out, "texture") {
		t.Errorf("console output missing message or name: %q", out)
	}
}

func TestBuildWithoutOutputsIsNop(t *testing.T) {
	l, err := Build("debug", FileConfig{}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if l.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected a no-op logger when no output is configured")
	}
}

func TestInitReplacesProcessLogger(t *testing.T) {
	defer func() {
		_ = InitWithFileConfig("info", FileConfig{}, nil)
	}()

	var buf bytes.Buffer
	if err := InitWithFileConfig("debug", FileConfig{}, &buf); err != nil {
		t.Fatalf("InitWithFileConfig() error = %v", err)
	}
	Sugar.Debugf("converted %d images", 3)
	Sync()

	if !strings.Contains(buf.String(), "converted 3 images") {
		t.Errorf("process logger did not write: %q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Error("OrNop should return a non-nil logger unchanged")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("bogus") != zapcore.InfoLevel {
		t.Error("unknown level should default to info")
	}
	if ParseLevel("warn") != zapcore.WarnLevel {
		t.Error("warn level not parsed")
	}
}

func TestDefaultFileConfig(t *testing.T) {
	cfg := DefaultFileConfig("/tmp/cryrc.log")

	if cfg.Path != "/tmp/cryrc.log" {
		t.Errorf("expected path /tmp/cryrc.log, got %s", cfg.Path)
	}
	if cfg.MaxSizeMB != 20 {
		t.Errorf("expected MaxSizeMB 20, got %d", cfg.MaxSizeMB)
	}
	if cfg.MaxBackups != 5 {
		t.Errorf("expected MaxBackups 5, got %d", cfg.MaxBackups)
	}
	if cfg.MaxAgeDays != 14 {
		t.Errorf("expected MaxAgeDays 14, got %d", cfg.MaxAgeDays)
	}
	if !cfg.Compress {
		t.Error("expected Compress to be true")
	}
}
