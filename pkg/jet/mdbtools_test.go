package jet

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
)

func TestParseExport(t *testing.T) {
	csvText := "RentalID,Status,Notes\n" +
		"1,\"Open\",\"needs \"\"care\"\"\"\n" +
		"2,\"Closed\",\n"

	data, err := parseExport("Rentals", strings.NewReader(csvText))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"RentalID", "Status", "Notes"}, data.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	want := [][]interface{}{
		{"1", "Open", `needs "care"`},
		{"2", "Closed", nil},
	}
	if diff := cmp.Diff(want, data.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	empty, err := parseExport("Empty", strings.NewReader(""))
	if err != nil || empty.Name != "Empty" || len(empty.Rows) != 0 {
		t.Errorf("empty export = %+v, %v", empty, err)
	}
}

// writeScript writes an executable shell script standing in for an
// mdb-tools program.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMDBToolsProvider(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts stand in for mdb-tools")
	}
	dir := t.TempDir()

	p := NewMDBToolsProvider(filepath.Join(dir, "por.mdb"))
	p.TablesCommand = writeScript(t, dir, "mdb-tables", "printf 'Rentals\\nCustomers\\n'\n")
	p.ExportCommand = writeScript(t, dir, "mdb-export", "printf 'ID,Name\\n1,\"Acme\"\\n'\n")

	tables, err := p.ListTables(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Rentals", "Customers"}, tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}

	data, err := p.LoadTable(context.Background(), "Customers")
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Rows) != 1 || data.Rows[0][1] != "Acme" {
		t.Errorf("rows = %v", data.Rows)
	}

	p.ExportCommand = writeScript(t, dir, "mdb-export-broken", "echo 'File not found' >&2\nexit 1\n")
	_, err = p.LoadTable(context.Background(), "Customers")
	if !kpiqerrors.IsCode(err, kpiqerrors.ErrCodeCatalogLoad) {
		t.Fatalf("expected a catalog load error, got %v", err)
	}
	if stderr := kpiqerrors.GetFields(err)["stderr"]; stderr != "File not found" {
		t.Errorf("stderr field = %v", stderr)
	}
}
