package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestSetupEmitsRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup("escrowd", "test", Options{Output: &buf, Level: "debug"})
	defer closer.Close()
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	logger.Debug("escrow created", "payer", "0x01", "hmacSecret", "hunter2", "token", "")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env"} {
		if _, ok := record[key]; !ok {
			t.Fatalf("missing key %q in %v", key, record)
		}
	}
	if record["severity"] != "DEBUG" || record["message"] != "escrow created" {
		t.Fatalf("unexpected record %v", record)
	}
	if record["hmacSecret"] != RedactedValue {
		t.Fatalf("secret not redacted: %v", record["hmacSecret"])
	}
	if record["token"] != "" {
		t.Fatalf("empty values stay empty, got %v", record["token"])
	}
	if record["payer"] != "0x01" {
		t.Fatalf("payer must pass through, got %v", record["payer"])
	}
}

func TestSetupLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup("escrowd", "", Options{Output: &buf, Level: "warn"})
	defer closer.Close()
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
}

func TestSetupWritesRotatingFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "escrowd.log")
	logger, closer := Setup("escrowd", "", Options{Output: &buf, File: path, MaxSizeMB: 1})
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	logger.Info("escrow settled", "outcome", "released")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Contains(data, []byte("escrow settled")) {
		t.Fatalf("log file missing record: %s", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError, "bogus": slog.LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
