package jet

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/catalog"
	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
)

// rentalsFixture mirrors what mdb-export yields: text cells, nil for empty.
func rentalsFixture() *catalog.StaticProvider {
	return catalog.NewStaticProvider(
		&catalog.TableData{
			Name:    "Rentals",
			Columns: []string{"RentalID", "CustomerID", "Status", "DateOut", "Amount", "Returned"},
			Rows: [][]interface{}{
				{"1", "10", "Open", "2024-03-01 00:00:00", "25.50", "0"},
				{"2", "11", "Open", "2024-03-05 00:00:00", "40", "0"},
				{"3", "10", "Closed", "2024-02-10 00:00:00", "15", "1"},
				{"4", "12", "Open", "2024-03-09 00:00:00", "10.25", "0"},
				{"5", "11", "Closed", "2024-01-20 00:00:00", nil, "1"},
			},
		},
		&catalog.TableData{
			Name:    "RentalItems",
			Columns: []string{"ItemID", "RentalID", "Description"},
			Rows:    [][]interface{}{{"1", "1", "Drill"}},
		},
	)
}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(catalog.New(rentalsFixture(), nil), nil)
}

func TestEvaluator_EndToEndOpenRentals(t *testing.T) {
	e := newTestEvaluator()

	raw, err := e.Execute(context.Background(), "SELECT Count(*) as value FROM Rentals WHERE Status = 'Open'", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	res := query.Extract(raw)
	if !res.Success || res.Shape != query.ShapeScalar {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Value != int64(3) {
		t.Errorf("value = %#v, want 3", res.Value)
	}
	if res.Partial {
		t.Error("result flagged partial without skipped conditions")
	}
}

func TestEvaluator_Count(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		hint string
		want int64
	}{
		{"all rows", "SELECT Count(*) FROM Rentals", "", 5},
		{"case-insensitive text", "SELECT Count(*) FROM Rentals WHERE Status = 'open'", "", 3},
		{"not equal", "SELECT Count(*) FROM Rentals WHERE Status <> 'Open'", "", 2},
		{"numeric comparison", "SELECT Count(*) FROM Rentals WHERE Amount >= 9", "", 4},
		{"date literal", "SELECT Count(*) FROM Rentals WHERE DateOut >= #3/1/2024#", "", 3},
		{"date text", "SELECT Count(*) FROM Rentals WHERE DateOut < '2024-03-01'", "", 2},
		{"like ansi", "SELECT Count(*) FROM Rentals WHERE Status LIKE 'op%'", "", 3},
		{"like jet", "SELECT Count(*) FROM Rentals WHERE Status LIKE 'C*'", "", 2},
		{"like single char", "SELECT Count(*) FROM Rentals WHERE Status LIKE 'Ope_'", "", 3},
		{"true", "SELECT Count(*) FROM Rentals WHERE Returned = True", "", 2},
		{"false", "SELECT Count(*) FROM Rentals WHERE Returned = False", "", 3},
		{"is null", "SELECT Count(*) FROM Rentals WHERE Amount IS NULL", "", 1},
		{"between", "SELECT Count(*) FROM Rentals WHERE Amount BETWEEN 10 AND 25.5", "", 3},
		{"conjunction", "SELECT Count(*) FROM Rentals WHERE Status = 'Open' AND CustomerID = 10", "", 1},
		{"count column skips nulls", "SELECT Count(Amount) FROM Rentals", "", 4},
		{"fuzzy table", "SELECT Count(*) FROM Rental", "", 5},
		{"table hint wins", "SELECT Count(*) FROM Anything", "Rentals", 5},
	}

	e := newTestEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := e.Execute(context.Background(), tt.sql, tt.hint)
			if err != nil {
				t.Fatalf("Execute(%q): %v", tt.sql, err)
			}
			if len(raw.Rows) != 1 || len(raw.Rows[0]) != 1 {
				t.Fatalf("unexpected shape: %v", raw.Rows)
			}
			if got := raw.Rows[0][0]; got != tt.want {
				t.Errorf("count = %#v, want %d", got, tt.want)
			}
		})
	}
}

func TestEvaluator_Aggregates(t *testing.T) {
	e := newTestEvaluator()
	ctx := context.Background()

	raw, err := e.Execute(ctx, "SELECT Sum(Amount) AS total, Avg(Amount), Min(DateOut), Max(DateOut) FROM Rentals", "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"total", "Expr1001", "Expr1002", "Expr1003"}, raw.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	row := raw.Rows[0]
	if sum := row[0].(decimal.Decimal); !sum.Equal(decimal.RequireFromString("90.75")) {
		t.Errorf("sum = %s, want 90.75", sum)
	}
	if avg := row[1].(decimal.Decimal); !avg.Equal(decimal.RequireFromString("22.6875")) {
		t.Errorf("avg = %s, want 22.6875", avg)
	}
	if row[2] != "2024-01-20 00:00:00" || row[3] != "2024-03-09 00:00:00" {
		t.Errorf("min/max = %v / %v", row[2], row[3])
	}

	// Nz supplies the default when nothing matches.
	raw, err = e.Execute(ctx, "SELECT Nz(Sum(Amount), 0) AS value FROM Rentals WHERE Status = 'Missing'", "")
	if err != nil {
		t.Fatal(err)
	}
	if res := query.Extract(raw); res.Value != int64(0) {
		t.Errorf("Nz value = %#v, want 0", res.Value)
	}

	// Without Nz an empty sum is NULL.
	raw, err = e.Execute(ctx, "SELECT Sum(Amount) AS value FROM Rentals WHERE Status = 'Missing'", "")
	if err != nil {
		t.Fatal(err)
	}
	if res := query.Extract(raw); res.Value != nil {
		t.Errorf("empty sum = %#v, want nil", res.Value)
	}
}

func TestEvaluator_Projection(t *testing.T) {
	e := newTestEvaluator()

	raw, err := e.Execute(context.Background(),
		"SELECT TOP 2 RentalID, Status AS state FROM Rentals WHERE Amount IS NOT NULL ORDER BY Amount DESC", "")
	if err != nil {
		t.Fatal(err)
	}

	want := &query.RawResult{
		Columns: []string{"RentalID", "state"},
		Rows: [][]interface{}{
			{"2", "Open"},
			{"1", "Open"},
		},
	}
	if diff := cmp.Diff(want, raw); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	raw, err = e.Execute(context.Background(), "SELECT * FROM Rentals", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(raw.Columns) != 6 || len(raw.Rows) != 5 {
		t.Errorf("SELECT * returned %d columns, %d rows", len(raw.Columns), len(raw.Rows))
	}
}

func TestEvaluator_TopLimits(t *testing.T) {
	e := newTestEvaluator()

	tests := []struct {
		sql  string
		want int
	}{
		{"SELECT TOP 0 * FROM Rentals", 0},
		{"SELECT TOP 3 * FROM Rentals", 3},
		{"SELECT TOP 10 * FROM Rentals", 5},
		{"SELECT * FROM Rentals", 5},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			raw, err := e.Execute(context.Background(), tt.sql, "")
			if err != nil {
				t.Fatal(err)
			}
			if len(raw.Rows) != tt.want {
				t.Errorf("rows = %d, want %d", len(raw.Rows), tt.want)
			}
		})
	}
}

func TestEvaluator_SkippedDateConditionsArePartial(t *testing.T) {
	e := newTestEvaluator()

	raw, err := e.Execute(context.Background(),
		"SELECT Count(*) AS value FROM Rentals WHERE Month(DateOut) = 3 AND Status = 'Closed'", "")
	if err != nil {
		t.Fatal(err)
	}

	res := query.Extract(raw)
	if res.Value != int64(2) {
		t.Errorf("value = %#v, want 2 (date condition not applied)", res.Value)
	}
	if !res.Partial {
		t.Error("expected the result to be flagged partial")
	}
	if diff := cmp.Diff([]string{"Month(DateOut) = 3"}, res.SkippedConditions); diff != "" {
		t.Errorf("skipped conditions mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluator_Errors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		kind kpiqerrors.Kind
	}{
		{"unknown select column", "SELECT Foo FROM Rentals", kpiqerrors.KindColumnNotFound},
		{"unknown where column", "SELECT Count(*) FROM Rentals WHERE Foo = 1", kpiqerrors.KindColumnNotFound},
		{"unknown order column", "SELECT RentalID FROM Rentals ORDER BY Foo", kpiqerrors.KindColumnNotFound},
		{"unknown aggregate column", "SELECT Sum(Foo) FROM Rentals", kpiqerrors.KindColumnNotFound},
		{"unknown table", "SELECT * FROM Invoices", kpiqerrors.KindTableNotFound},
		{"or", "SELECT * FROM Rentals WHERE Status = 'Open' OR Status = 'Closed'", kpiqerrors.KindUnsupportedQuery},
	}

	e := newTestEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(context.Background(), tt.sql, "")
			if got := kpiqerrors.KindOf(err); got != tt.kind {
				t.Errorf("kind = %q (%v), want %q", got, err, tt.kind)
			}
		})
	}
}

func TestEvaluator_UnknownTableListsKnownTables(t *testing.T) {
	e := newTestEvaluator()

	_, err := e.Execute(context.Background(), "SELECT * FROM Invoices", "")
	known := kpiqerrors.GetFields(err)["known_tables"]
	if diff := cmp.Diff([]string{"Rentals", "RentalItems"}, known); diff != "" {
		t.Errorf("known_tables mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluator_CancelledContextTimesOut(t *testing.T) {
	e := newTestEvaluator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, "SELECT Count(*) FROM Rentals WHERE Status = 'Open'", "")
	if !kpiqerrors.IsKind(err, kpiqerrors.KindTimeout) {
		t.Errorf("expected Timeout, got %v", err)
	}
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"Smi%", "Smith", true},
		{"Smi%", "smith", true},
		{"Smi%", "Blacksmith", false},
		{"%smith", "Blacksmith", true},
		{"J_n", "Jon", true},
		{"J?n", "Jan", true},
		{"A#", "A7", true},
		{"A#", "AB", false},
		{"50.0%", "50.0 off", true},
		{"50.0%", "5000", false},
	}
	for _, tt := range tests {
		re, err := likePattern(tt.pattern)
		if err != nil {
			t.Fatalf("likePattern(%q): %v", tt.pattern, err)
		}
		if got := re.MatchString(tt.input); got != tt.want {
			t.Errorf("%q LIKE %q = %v, want %v", tt.input, tt.pattern, got, tt.want)
		}
	}
}
