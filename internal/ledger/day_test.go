package ledger

import (
	"strings"
	"testing"
)

func TestDayExprBucketsPostgresInUTC(t *testing.T) {
	expr := dayExpr("postgres")
	if !strings.Contains(expr, "movement_date AT TIME ZONE 'UTC'") {
		t.Fatalf("postgres day bucket must convert to UTC, got %q", expr)
	}
	if got := dayExpr("sqlite"); got != "strftime('%Y-%m-%d', movement_date)" {
		t.Fatalf("unexpected sqlite day bucket %q", got)
	}
}
