package query

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func TestExtract_Scalar(t *testing.T) {
	tests := []struct {
		name string
		raw  *RawResult
		want interface{}
	}{
		{
			name: "value column",
			raw:  &RawResult{Columns: []string{"value"}, Rows: [][]interface{}{{42}}},
			want: int64(42),
		},
		{
			name: "first column fallback",
			raw:  &RawResult{Columns: []string{"count"}, Rows: [][]interface{}{{int64(7)}}},
			want: int64(7),
		},
		{
			name: "value column preferred over first",
			raw:  &RawResult{Columns: []string{"label", "Value"}, Rows: [][]interface{}{{"open", "12.5"}}},
			want: 12.5,
		},
		{
			name: "first of many without value column",
			raw:  &RawResult{Columns: []string{"total", "label"}, Rows: [][]interface{}{{"3", "x"}}},
			want: int64(3),
		},
		{
			name: "numeric bytes from driver",
			raw:  &RawResult{Columns: []string{"amount"}, Rows: [][]interface{}{{[]byte("1050.25")}}},
			want: 1050.25,
		},
		{
			name: "decimal value",
			raw:  &RawResult{Columns: []string{"amount"}, Rows: [][]interface{}{{decimal.RequireFromString("19.00")}}},
			want: int64(19),
		},
		{
			name: "text stays text",
			raw:  &RawResult{Columns: []string{"name"}, Rows: [][]interface{}{{"Acme"}}},
			want: "Acme",
		},
		{
			name: "null value",
			raw:  &RawResult{Columns: []string{"value"}, Rows: [][]interface{}{{nil}}},
			want: nil,
		},
		{
			name: "empty result",
			raw:  &RawResult{Columns: []string{"value"}},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.raw)
			if !got.Success || got.Shape != ShapeScalar {
				t.Fatalf("Extract() = %+v, want scalar success", got)
			}
			if got.Rows != nil {
				t.Errorf("Rows should be absent, got %v", got.Rows)
			}
			if got.Value != tt.want {
				t.Errorf("Value = %#v, want %#v", got.Value, tt.want)
			}
		})
	}
}

func TestExtract_MultiRow(t *testing.T) {
	raw := &RawResult{
		Columns:      []string{"month", "total"},
		Rows:         [][]interface{}{{"Jan", int64(3)}, {"Feb", []byte("4")}, {"Mar", nil}, {"Apr", "007"}},
		ConnectionID: "abc",
	}

	got := Extract(raw)
	if got.Shape != ShapeRows || got.Value != nil {
		t.Fatalf("expected rows only, got %+v", got)
	}
	if got.ConnectionID != "abc" {
		t.Errorf("ConnectionID = %q", got.ConnectionID)
	}

	want := []Row{
		{Columns: []string{"month", "total"}, Values: []interface{}{"Jan", int64(3)}},
		{Columns: []string{"month", "total"}, Values: []interface{}{"Feb", "4"}},
		{Columns: []string{"month", "total"}, Values: []interface{}{"Mar", nil}},
		{Columns: []string{"month", "total"}, Values: []interface{}{"Apr", "007"}},
	}
	if diff := cmp.Diff(want, got.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_PartialFlowsThrough(t *testing.T) {
	got := Extract(&RawResult{
		Columns:           []string{"value"},
		Rows:              [][]interface{}{{int64(2)}},
		Partial:           true,
		SkippedConditions: []string{"Month(DateOut) = 3"},
	})
	if !got.Partial || len(got.SkippedConditions) != 1 {
		t.Errorf("partial flag lost: %+v", got)
	}
}

func TestRow_MarshalJSONKeepsOrder(t *testing.T) {
	row := Row{Columns: []string{"z", "a", "m"}, Values: []interface{}{1, "two", nil}}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != `{"z":1,"a":"two","m":null}` {
		t.Errorf("json = %s", got)
	}

	if v, ok := row.Get("A"); !ok || v != "two" {
		t.Errorf("Get(A) = %v, %v", v, ok)
	}
}

func TestParseBackendAndMode(t *testing.T) {
	for in, want := range map[string]Backend{"p21": Networked, "POR": FileBased, " filebased ": FileBased} {
		got, err := ParseBackend(in)
		if err != nil || got != want {
			t.Errorf("ParseBackend(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseBackend("oracle"); err == nil {
		t.Error("expected error for unknown backend")
	}
	if m, err := ParseMode(""); err != nil || m != Production {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
	if _, err := ParseMode("staging"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
