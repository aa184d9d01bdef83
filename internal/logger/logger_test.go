package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NamanBalaji/tbs/internal/logger"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf, false)
	defer logger.Close()

	logger.Infof("scanned %d files", 3)
	logger.Debugf("hidden")
	logger.Warnf("short destination")
	logger.Errorf("write failed")

	out := buf.String()
	for _, want := range []string{"[INFO] scanned 3 files", "[WARNING] short destination", "[ERROR] write failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written with debug disabled: %q", out)
	}
}

func TestInitLoggingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tbs.log")

	if err := logger.InitLogging(logger.Options{Debug: true, LogPath: path, Prefix: "run-1"}); err != nil {
		t.Fatalf("InitLogging failed: %v", err)
	}
	logger.Debugf("window %d", 7)
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "run-1 [DEBUG] window 7") {
		t.Errorf("unexpected log contents %q", data)
	}
}

func TestDiscardWithoutOutputs(t *testing.T) {
	if err := logger.InitLogging(logger.Options{}); err != nil {
		t.Fatalf("InitLogging failed: %v", err)
	}
	logger.Infof("nowhere")
	logger.Close()
}
