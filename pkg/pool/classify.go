package pool

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
)

// SQL Server error numbers.
const (
	mssqlInvalidObject = 208
	mssqlInvalidColumn = 207
	mssqlSyntax        = 102
	mssqlSyntaxKeyword = 156
)

// PostgreSQL SQLSTATE codes.
const (
	pgUndefinedTable  = "42P01"
	pgUndefinedColumn = "42703"
	pgSyntaxError     = "42601"
)

// statementError maps a server-side statement failure onto the error
// taxonomy. It returns nil for errors it does not recognise.
func statementError(err error) *kpiqerrors.Builder {
	var number int32
	var message string
	var code string

	var msErr mssql.Error
	var msErrPtr *mssql.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &msErr):
		number, message = msErr.Number, msErr.Message
	case errors.As(err, &msErrPtr):
		number, message = msErrPtr.Number, msErrPtr.Message
	case errors.As(err, &pgErr):
		code, message = pgErr.Code, pgErr.Message
	default:
		return nil
	}

	switch {
	case number == mssqlInvalidObject || code == pgUndefinedTable:
		table := unqualify(quotedName(message))
		return kpiqerrors.TableNotFound(table, nil, nil).WithField("server_message", message)
	case number == mssqlInvalidColumn || code == pgUndefinedColumn:
		return kpiqerrors.ColumnNotFound("", unqualify(quotedName(message)), nil).
			WithField("server_message", message)
	case number == mssqlSyntax || number == mssqlSyntaxKeyword || code == pgSyntaxError:
		return kpiqerrors.Wrap(err, kpiqerrors.ErrCodeParseError, "server could not parse the query")
	}
	return nil
}

// quotedName returns the first 'single' or "double" quoted word in msg.
func quotedName(msg string) string {
	for _, q := range []byte{'\'', '"'} {
		i := strings.IndexByte(msg, q)
		if i < 0 {
			continue
		}
		if j := strings.IndexByte(msg[i+1:], q); j >= 0 {
			return msg[i+1 : i+1+j]
		}
	}
	return ""
}

func unqualify(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
