package engine

import (
	"context"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/catalog"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/dialect"
	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/jet"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/pool"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
)

// listTablesSQL works on SQL Server and PostgreSQL alike.
const listTablesSQL = "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"

// NetworkedExecutor runs stored T-SQL on pooled sessions.
type NetworkedExecutor struct {
	pool *pool.Pool
	tr   *dialect.Translator
}

// NewNetworkedExecutor creates an executor over p. Queries are translated
// from T-SQL when the server speaks another dialect.
func NewNetworkedExecutor(p *pool.Pool, server dialect.Dialect) *NetworkedExecutor {
	e := &NetworkedExecutor{pool: p}
	if server != "" && server != dialect.TSQL {
		e.tr = dialect.NewTranslator(dialect.TSQL, server)
	}
	return e
}

// Execute acquires the session named by req.ConnectionID, or a new one,
// and runs the query on it.
func (e *NetworkedExecutor) Execute(ctx context.Context, req query.Request) (*query.RawResult, error) {
	h, id, err := e.pool.Acquire(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}

	text := req.SQL
	if e.tr != nil {
		text = e.tr.Translate(text)
	}

	raw, err := e.pool.Execute(ctx, h, text)
	if err != nil {
		if kpiqerrors.IsKind(err, kpiqerrors.KindTableNotFound) {
			return nil, e.withKnownTables(ctx, h, err)
		}
		return nil, err
	}
	raw.ConnectionID = id
	return raw, nil
}

// withKnownTables rebuilds a missing-table error with the server's table
// list, read on the session that reported it.
func (e *NetworkedExecutor) withKnownTables(ctx context.Context, h *pool.Handle, err error) error {
	known, listErr := e.listTables(ctx, h)
	if listErr != nil || len(known) == 0 {
		return err
	}
	fields := kpiqerrors.GetFields(err)
	table, _ := fields["table"].(string)
	b := kpiqerrors.TableNotFound(table, known, catalog.Suggest(table, known)).WithOp("NetworkedExecutor.Execute")
	for _, k := range []string{"connection_id", "server_message"} {
		if v, ok := fields[k]; ok {
			b = b.WithField(k, v)
		}
	}
	return b.Err()
}

func (e *NetworkedExecutor) listTables(ctx context.Context, h *pool.Handle) ([]string, error) {
	raw, err := e.pool.Execute(ctx, h, listTablesSQL)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(raw.Rows))
	for _, row := range raw.Rows {
		if name, ok := row[0].(string); ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// Tables lists base tables over a short-lived session.
func (e *NetworkedExecutor) Tables(ctx context.Context, _ query.Backend) ([]string, error) {
	h, id, err := e.pool.Acquire(ctx, "")
	if err != nil {
		return nil, err
	}
	defer e.pool.Release(id)

	return e.listTables(ctx, h)
}

// JetExecutor runs stored Jet SQL through the restricted evaluator.
type JetExecutor struct {
	eval *jet.Evaluator
}

// NewJetExecutor wraps eval.
func NewJetExecutor(eval *jet.Evaluator) *JetExecutor {
	return &JetExecutor{eval: eval}
}

// Execute evaluates req.SQL, resolving the table through req.TableHint when
// one is given.
func (e *JetExecutor) Execute(ctx context.Context, req query.Request) (*query.RawResult, error) {
	return e.eval.Execute(ctx, req.SQL, req.TableHint)
}

// Tables lists the catalog's tables.
func (e *JetExecutor) Tables(ctx context.Context, _ query.Backend) ([]string, error) {
	return e.eval.Catalog().Tables(ctx)
}
