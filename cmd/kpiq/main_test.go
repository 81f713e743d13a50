package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/version"
)

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-v"}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr %s", code, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != version.Full() {
		t.Errorf("version output = %q", got)
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--help"}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "POST   /api/query") {
		t.Errorf("usage output missing endpoints:\n%s", stdout.String())
	}
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--no-such-flag"}, nil, &stdout, &stderr); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestRun_QueryAgainstTestData(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{
		"--log-level", "error",
		"--mode", "TEST",
		"--backend", "POR",
		"--query", "SELECT Count(*) AS value FROM Rentals WHERE Status = 'Open'",
	}, nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %s", code, stderr.String())
	}

	var resp struct {
		Success bool        `json:"success"`
		Value   json.Number `json:"value"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", stdout.String(), err)
	}
	if !resp.Success || resp.Value != "3" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRun_QueryFromStdin(t *testing.T) {
	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader("SELECT COUNT(*) AS value FROM dbo.oe_hdr WHERE completed = 'N' AND delete_flag = 'N'")
	code := run([]string{"--log-level", "error", "--mode", "TEST", "--backend", "P21", "--query", "-"}, stdin, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"value": 2`) {
		t.Errorf("output = %s", stdout.String())
	}
}

func TestRun_QueryRejected(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--log-level", "error", "--mode", "TEST", "--query", "DROP TABLE oe_hdr"}, nil, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), `"errorKind": "InvalidQuery"`) {
		t.Errorf("output = %s", stdout.String())
	}
}

func TestRun_UnknownBackendIsUsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--log-level", "error", "--backend", "MYSQL", "--query", "SELECT 1"}, nil, &stdout, &stderr)
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpiq.yaml")
	if err := os.WriteFile(path, []byte("filebased:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-c", path}, nil, &stdout, &stderr); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "filebased.path is required") {
		t.Errorf("stderr = %s", stderr.String())
	}
}
