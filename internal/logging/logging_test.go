package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fp.log")
	l := New(Config{File: path})

	l.For("session").Printf("started %s", "abc")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "[session] ") || !strings.Contains(string(data), "started abc") {
		t.Errorf("Unexpected log contents: %q", data)
	}
}

func TestQuietByDefault(t *testing.T) {
	l := New(Config{})
	if l.out != io.Discard {
		t.Error("Expected logs to be discarded without file or verbose")
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestVerboseUsesStderr(t *testing.T) {
	l := New(Config{Verbose: true})
	if l.out != os.Stderr {
		t.Error("Expected verbose logs on stderr")
	}
}
