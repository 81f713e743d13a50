package annotations

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParse_LeadingBlock(t *testing.T) {
	source := `-- @kpiq:table=Rentals
-- Open rentals for the POR tile
-- @kpiq:timeout=5s

-- @kpiq:deprecated
SELECT Count(*) AS value FROM Rentals WHERE Status = 'Open'`

	got := Parse(source)
	want := Set{"table": "Rentals", "timeout": "5s", "deprecated": ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("set mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_StopsAtStatement(t *testing.T) {
	source := `SELECT 1
-- @kpiq:table=Late`

	if got := Parse(source); len(got) != 0 {
		t.Errorf("expected no directives, got %v", got)
	}
}

func TestParse_NoDirectives(t *testing.T) {
	if got := Parse("SELECT COUNT(*) FROM oe_hdr"); len(got) != 0 {
		t.Errorf("expected empty set, got %v", got)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		wantKey string
		wantVal string
		wantOK  bool
	}{
		{"-- @kpiq:table=Rentals", "table", "Rentals", true},
		{"-- @kpiq:  Table = Rental Items ", "table", "Rental Items", true},
		{"-- @kpiq:deprecated", "deprecated", "", true},
		{"-- @kpiq:", "", "", false},
		{"-- @kpiq:=x", "=x", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			key, val, ok := parseLine(tt.line)
			if key != tt.wantKey || val != tt.wantVal || ok != tt.wantOK {
				t.Errorf("parseLine(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.line, key, val, ok, tt.wantKey, tt.wantVal, tt.wantOK)
			}
		})
	}
}

func TestSet_GetBool(t *testing.T) {
	set := Set{"flag": "", "yes": "yes", "one": "1", "off": "false", "junk": "maybe"}

	tests := map[string]bool{
		"flag":    true,
		"yes":     true,
		"one":     true,
		"off":     false,
		"junk":    false,
		"missing": false,
	}
	for key, want := range tests {
		if got := set.GetBool(key); got != want {
			t.Errorf("GetBool(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestSet_GetDuration(t *testing.T) {
	tests := []struct {
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"5s", 5 * time.Second, true},
		{"250ms", 250 * time.Millisecond, true},
		{"3", 3 * time.Second, true},
		{"0", 0, false},
		{"-1s", 0, false},
		{"soon", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, ok := Set{"timeout": tt.value}.GetDuration("timeout")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("GetDuration(%q) = (%v, %v), want (%v, %v)", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSet_Directives(t *testing.T) {
	set := Parse(`-- @kpiq:table=[Rental Items]
-- @kpiq:timeout=2s
-- @kpiq:cache=forever
-- @kpiq:audit
SELECT Count(*) FROM RentalItems`)

	got := set.Directives()
	want := Directives{
		TableHint: "Rental Items",
		Timeout:   2 * time.Second,
		Unknown:   []string{"audit", "cache"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("directives mismatch (-want +got):\n%s", diff)
	}
	if got.Empty() {
		t.Error("directives reported empty")
	}
}

func TestDirectives_Empty(t *testing.T) {
	if !Parse("SELECT 1").Directives().Empty() {
		t.Error("plain query should carry no directives")
	}
}
