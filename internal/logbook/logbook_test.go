package logbook

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journey.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestAppendWritesLevelAndTag(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "logs", "journey.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Warn("before tag")
	book.SetTag("a1b2c3")
	book.Error("geotab set failed: %d", 500)
	lines, total := book.Tail(10)
	if total != 2 {
		t.Fatalf("total lines = %d, want 2", total)
	}
	if !strings.Contains(lines[0], "WARN ") || strings.Contains(lines[0], "[a1b2c3]") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "ERROR [a1b2c3] geotab set failed: 500") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	book.SetTag("x")
	if lines, total := book.Tail(3); lines != nil || total != 0 {
		t.Fatalf("expected empty tail from nil logbook")
	}
	if book.Path() != "" {
		t.Fatalf("expected empty path")
	}
}
