package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrintfAppendsTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "http.log")
	logger, err := New(path)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Printf("m5 GET %s -> %d\n", "/api/v1/assets/2140", 200)
	logger.Printf("geotab POST -> %d", 500)
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "[") || !strings.HasSuffix(lines[0], "] m5 GET /api/v1/assets/2140 -> 200") {
		t.Fatalf("unexpected line %q", lines[0])
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Printf("dropped")
	if err := logger.Close(); err != nil {
		t.Fatalf("close nil: %v", err)
	}
}
