package encode

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gridport/gridport/internal/grid"
)

func TestCSV_Basic(t *testing.T) {
	tbl := &grid.Table{Rows: [][]string{
		{"Name", "Age"},
		{"Alice", "30"},
		{"with,comma", `with"quote`},
	}}
	data, err := CSV(tbl, CSVOptions{})
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}

	want := "Name,Age\nAlice,30\n\"with,comma\",\"with\"\"quote\"\n"
	if string(data) != want {
		t.Errorf("csv = %q, want %q", data, want)
	}
}

func TestCSV_BOM(t *testing.T) {
	tbl := &grid.Table{Rows: [][]string{{"a"}}}

	data, err := CSV(tbl, CSVOptions{BOM: true})
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		t.Errorf("expected BOM prefix, got % x", data[:3])
	}

	data, err = CSV(tbl, CSVOptions{})
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		t.Error("unexpected BOM without the option")
	}
}

func TestCSV_EmptyTable(t *testing.T) {
	data, err := CSV(&grid.Table{}, CSVOptions{})
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty output, got %q", data)
	}
}

func TestEscapeFormula(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"=1+2", "'=1+2"},
		{"+SUM(A1)", "'+SUM(A1)"},
		{"-5", "'-5"},
		{"@cmd", "'@cmd"},
		{"'=already quoted", "'=already quoted"},
		{"plain", "plain"},
		{"", ""},
		{"a=b", "a=b"},
	}
	for _, tt := range tests {
		if got := EscapeFormula(tt.in); got != tt.want {
			t.Errorf("EscapeFormula(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCSV_EscapesEveryCell(t *testing.T) {
	tbl := &grid.Table{Rows: [][]string{{"=cmd()", "safe"}, {"@danger", "-1"}}}
	data, err := CSV(tbl, CSVOptions{})
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	out := string(data)
	for _, want := range []string{"'=cmd()", "'@danger", "'-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing escaped cell %q", out, want)
		}
	}
}

func TestCSV_StrictProgressAborts(t *testing.T) {
	boom := errors.New("boom")
	rep := NewReporter(func(int) error { return boom }, true, nil)

	_, err := CSV(&grid.Table{Rows: [][]string{{"a"}}}, CSVOptions{Progress: rep})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped callback error", err)
	}
}

func TestCSV_LenientProgressContinues(t *testing.T) {
	calls := 0
	rep := NewReporter(func(int) error { calls++; return errors.New("ignored") }, false, nil)

	data, err := CSV(&grid.Table{Rows: [][]string{{"a"}}}, CSVOptions{Progress: rep})
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected output despite failing callback")
	}
	if calls == 0 {
		t.Error("callback never invoked")
	}
}

func TestReporter_ReportsTerminalHundred(t *testing.T) {
	var got []int
	rep := NewReporter(func(pct int) error { got = append(got, pct); return nil }, true, nil)

	rows := make([][]string, 25)
	for i := range rows {
		rows[i] = []string{"x"}
	}
	if _, err := CSV(&grid.Table{Rows: rows}, CSVOptions{Progress: rep}); err != nil {
		t.Fatalf("CSV: %v", err)
	}
	if len(got) == 0 || got[len(got)-1] != 100 {
		t.Errorf("progress sequence %v should end at 100", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Errorf("progress went backwards: %v", got)
		}
	}
}
