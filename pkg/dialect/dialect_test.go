package dialect

import (
	"reflect"
	"testing"
)

func TestTranslate_TSQLToSQLite(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "getdate",
			in:   "SELECT GETDATE() as value",
			want: "SELECT datetime('now') as value",
		},
		{
			name: "qualified names and hints",
			in:   "SELECT COUNT(*) as value FROM P21.dbo.oe_hdr WITH (NOLOCK) WHERE completed = 'N'",
			want: "SELECT COUNT(*) as value FROM oe_hdr WHERE completed = 'N'",
		},
		{
			name: "bracketed qualified names",
			in:   "SELECT COUNT(*) FROM [dbo].[oe_hdr]",
			want: "SELECT COUNT(*) FROM [oe_hdr]",
		},
		{
			name: "isnull and nested dateadd",
			in:   "SELECT ISNULL(SUM(total), 0) as value FROM invoice_hdr WHERE invoice_date >= DATEADD(day, -30, GETDATE())",
			want: "SELECT IFNULL(SUM(total), 0) as value FROM invoice_hdr WHERE invoice_date >= datetime(datetime('now'), (-30) || ' days')",
		},
		{
			name: "year and month",
			in:   "SELECT COUNT(*) FROM oe_hdr WHERE YEAR(order_date) = 2024 AND MONTH(order_date) = 3",
			want: "SELECT COUNT(*) FROM oe_hdr WHERE CAST(strftime('%Y', order_date) AS INTEGER) = 2024 AND CAST(strftime('%m', order_date) AS INTEGER) = 3",
		},
		{
			name: "datediff days",
			in:   "SELECT DATEDIFF(dd, a, b) FROM t",
			want: "SELECT CAST(julianday(date(b)) - julianday(date(a)) AS INTEGER) FROM t",
		},
		{
			name: "charindex swaps arguments",
			in:   "SELECT CHARINDEX('x', name) FROM t",
			want: "SELECT INSTR(name, 'x') FROM t",
		},
		{
			name: "convert",
			in:   "SELECT CONVERT(VARCHAR(10), id) FROM t",
			want: "SELECT CAST(id AS TEXT) FROM t",
		},
		{
			name: "cast as date",
			in:   "SELECT COUNT(*) FROM t WHERE d = CAST(GETDATE() AS DATE)",
			want: "SELECT COUNT(*) FROM t WHERE d = date(datetime('now'))",
		},
		{
			name: "top",
			in:   "SELECT TOP 5 name FROM t ORDER BY name",
			want: "SELECT name FROM t ORDER BY name LIMIT 5",
		},
		{
			name: "national strings",
			in:   "SELECT COUNT(*) FROM t WHERE a = N'Open' AND b = 'N'",
			want: "SELECT COUNT(*) FROM t WHERE a = 'Open' AND b = 'N'",
		},
		{
			name: "literals untouched",
			in:   "SELECT COUNT(*) FROM t WHERE note = 'GETDATE() dbo.x'",
			want: "SELECT COUNT(*) FROM t WHERE note = 'GETDATE() dbo.x'",
		},
		{
			name: "string concat",
			in:   "SELECT 'a' + name FROM t",
			want: "SELECT 'a' || name FROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Translate(tt.in, TSQL, SQLite); got != tt.want {
				t.Errorf("Translate()\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestTranslate_TSQLToPostgres(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "isnull and getdate",
			in:   "SELECT ISNULL(SUM(total), 0) FROM [invoice_hdr] WHERE d < GETDATE()",
			want: `SELECT COALESCE(SUM(total), 0) FROM "invoice_hdr" WHERE d < NOW()`,
		},
		{
			name: "dateadd",
			in:   "SELECT COUNT(*) FROM t WHERE d >= DATEADD(month, -1, GETDATE())",
			want: "SELECT COUNT(*) FROM t WHERE d >= (NOW() + (-1) * INTERVAL '1 month')",
		},
		{
			name: "year",
			in:   "SELECT YEAR(d) FROM t",
			want: "SELECT CAST(EXTRACT(YEAR FROM d) AS INTEGER) FROM t",
		},
		{
			name: "brackets inside literals kept",
			in:   "SELECT COUNT(*) FROM [t] WHERE code LIKE '[A-C]%'",
			want: `SELECT COUNT(*) FROM "t" WHERE code LIKE '[A-C]%'`,
		},
		{
			name: "top",
			in:   "SELECT TOP 1 total FROM t",
			want: "SELECT total FROM t LIMIT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Translate(tt.in, TSQL, Postgres); got != tt.want {
				t.Errorf("Translate()\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestTranslate_JetToSQLite(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "nz",
			in:   "SELECT Nz(Sum(Amount), 0) as value FROM Rentals",
			want: "SELECT IFNULL(Sum(Amount), 0) as value FROM Rentals",
		},
		{
			name: "date literal",
			in:   "SELECT Count(*) FROM Rentals WHERE DateOut >= #3/1/2024#",
			want: "SELECT Count(*) FROM Rentals WHERE DateOut >= '2024-03-01'",
		},
		{
			name: "date functions",
			in:   "SELECT Count(*) FROM Rentals WHERE Month(DateOut) = Month(Date())",
			want: "SELECT Count(*) FROM Rentals WHERE CAST(strftime('%m', DateOut) AS INTEGER) = CAST(strftime('%m', date('now')) AS INTEGER)",
		},
		{
			name: "dateadd with quoted unit",
			in:   "SELECT Count(*) FROM Rentals WHERE DateOut > DateAdd('m', -1, Now())",
			want: "SELECT Count(*) FROM Rentals WHERE DateOut > datetime(datetime('now'), (-1) || ' months')",
		},
		{
			name: "like wildcards",
			in:   "SELECT Count(*) FROM Customers WHERE Name LIKE 'Smi*'",
			want: "SELECT Count(*) FROM Customers WHERE Name LIKE 'Smi%'",
		},
		{
			name: "booleans and concat",
			in:   "SELECT First & ' ' & Last FROM Customers WHERE Active = True",
			want: "SELECT First || ' ' || Last FROM Customers WHERE Active = 1",
		},
		{
			name: "iif",
			in:   "SELECT Sum(IIf(Status = 'Open', 1, 0)) FROM Rentals",
			want: "SELECT Sum(CASE WHEN Status = 'Open' THEN 1 ELSE 0 END) FROM Rentals",
		},
		{
			name: "top",
			in:   "SELECT TOP 3 Name FROM Customers",
			want: "SELECT Name FROM Customers LIMIT 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Translate(tt.in, Jet, SQLite); got != tt.want {
				t.Errorf("Translate()\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestTranslate_SameDialect(t *testing.T) {
	in := "SELECT GETDATE()"
	if got := Translate(in, TSQL, TSQL); got != in {
		t.Errorf("identity translation changed the query: %s", got)
	}
}

func TestSplitArgs(t *testing.T) {
	got := splitArgs(" a, f(b, c), 'x,y' , [d,e] ")
	want := []string{"a", "f(b, c)", "'x,y'", "[d,e]"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitArgs() = %q, want %q", got, want)
	}
	if args := splitArgs("  "); args != nil {
		t.Errorf("splitArgs(empty) = %q", args)
	}
}

func TestParse(t *testing.T) {
	for in, want := range map[string]Dialect{
		"mssql":  TSQL,
		"Access": Jet,
		"pgx":    Postgres,
		"sqlite": SQLite,
	} {
		got, err := Parse(in)
		if err != nil || got != want {
			t.Errorf("Parse(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := Parse("oracle"); err == nil {
		t.Error("expected an error for an unknown dialect")
	}
}
