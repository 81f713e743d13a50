package jet

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os/exec"
	"strings"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/catalog"
	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
)

// MDBToolsProvider reads an Access database file with the mdb-tools
// command line programs. It implements catalog.Provider.
type MDBToolsProvider struct {
	Path string

	// Program names; default to mdb-tables and mdb-export on PATH.
	TablesCommand string
	ExportCommand string
}

// NewMDBToolsProvider creates a provider for the database file at path.
func NewMDBToolsProvider(path string) *MDBToolsProvider {
	return &MDBToolsProvider{
		Path:          path,
		TablesCommand: "mdb-tables",
		ExportCommand: "mdb-export",
	}
}

// ListTables returns the user tables in file order.
func (p *MDBToolsProvider) ListTables(ctx context.Context) ([]string, error) {
	out, err := p.run(ctx, p.TablesCommand, "-1", p.Path)
	if err != nil {
		return nil, err
	}

	var tables []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			tables = append(tables, name)
		}
	}
	return tables, sc.Err()
}

// LoadTable exports one table as CSV. Dates are exported in ISO form and
// empty fields become nil.
func (p *MDBToolsProvider) LoadTable(ctx context.Context, name string) (*catalog.TableData, error) {
	out, err := p.run(ctx, p.ExportCommand, "-D", "%Y-%m-%d %H:%M:%S", p.Path, name)
	if err != nil {
		return nil, err
	}
	return parseExport(name, bytes.NewReader(out))
}

func parseExport(name string, r io.Reader) (*catalog.TableData, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return &catalog.TableData{Name: name}, nil
	}
	if err != nil {
		return nil, err
	}

	data := &catalog.TableData{Name: name, Columns: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]interface{}, len(header))
		for i := range header {
			if i < len(rec) && rec[i] != "" {
				row[i] = rec[i]
			}
		}
		data.Rows = append(data.Rows, row)
	}
	return data, nil
}

func (p *MDBToolsProvider) run(ctx context.Context, program string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, kpiqerrors.Wrapf(err, kpiqerrors.ErrCodeCatalogLoad, "%s failed", program).
			WithOp("MDBToolsProvider.run").
			WithField("path", p.Path).
			WithField("stderr", strings.TrimSpace(stderr.String())).
			Err()
	}
	return out, nil
}
