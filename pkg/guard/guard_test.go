package guard

import (
	"testing"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		wantCode kpiqerrors.Code // 0 means accepted
	}{
		{"simple select", "SELECT 1", 0},
		{"lower case", "select count(*) as value from Rentals", 0},
		{"leading whitespace and comment", "  -- daily orders\n  SELECT COUNT(*) FROM oe_hdr", 0},
		{"block comment", "/* kpi */ SELECT value FROM t", 0},
		{"keyword inside literal", "SELECT COUNT(*) FROM audit WHERE Action = 'DELETE'", 0},
		{"keyword inside brackets", "SELECT [Update] FROM t", 0},
		{"semicolon inside literal", "SELECT * FROM t WHERE note = 'a;b'", 0},
		{"escaped quote", "SELECT * FROM t WHERE name = 'O''Brien'", 0},
		{"column named like keyword", "SELECT UpdatedAt, created_by FROM t", 0},
		{"empty", "   ", kpiqerrors.ErrCodeEmptyQuery},
		{"only comment", "-- nothing", kpiqerrors.ErrCodeEmptyQuery},
		{"delete", "DELETE FROM t", kpiqerrors.ErrCodeNotSelect},
		{"with cte", "WITH x AS (SELECT 1) SELECT * FROM x", kpiqerrors.ErrCodeNotSelect},
		{"selector prefix", "SELECTED FROM t", kpiqerrors.ErrCodeNotSelect},
		{"multi statement", "SELECT 1; DROP TABLE t", kpiqerrors.ErrCodeMultiStatement},
		{"trailing semicolon", "SELECT 1;", kpiqerrors.ErrCodeMultiStatement},
		{"comment hides nothing", "SELECT 1 /* ; */ ; DELETE FROM t", kpiqerrors.ErrCodeMultiStatement},
		{"drop keyword", "SELECT * FROM t WHERE 1 = 1 OR DROP", kpiqerrors.ErrCodeForbiddenKeyword},
		{"select into", "SELECT * INTO backup FROM t", kpiqerrors.ErrCodeForbiddenKeyword},
		{"exec", "SELECT 1 EXEC sp_who", kpiqerrors.ErrCodeForbiddenKeyword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.sql)
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("Validate(%q) = %v, want nil", tt.sql, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate(%q) accepted, want %s", tt.sql, tt.wantCode)
			}
			if got := kpiqerrors.GetCode(err); got != tt.wantCode {
				t.Errorf("Validate(%q) code = %s, want %s", tt.sql, got, tt.wantCode)
			}
			if kpiqerrors.KindOf(err) != kpiqerrors.KindInvalidQuery {
				t.Errorf("kind = %s, want InvalidQuery", kpiqerrors.KindOf(err))
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SELECT 'abc'", "SELECT '___'"},
		{"SELECT [a b] FROM t", "SELECT [___] FROM t"},
		{"SELECT 1 -- c\nFROM t", "SELECT 1  \nFROM t"},
		{"SELECT /* x */1", "SELECT  1"},
		{"SELECT 'it''s'", "SELECT '_____'"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
