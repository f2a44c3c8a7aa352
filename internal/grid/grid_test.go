package grid

import "testing"

func TestMergeRange_Validate(t *testing.T) {
	tests := []struct {
		name    string
		m       MergeRange
		wantErr bool
	}{
		{"horizontal", MergeRange{0, 0, 0, 2}, false},
		{"vertical", MergeRange{1, 3, 4, 3}, false},
		{"block", MergeRange{0, 0, 1, 1}, false},
		{"single cell", MergeRange{2, 2, 2, 2}, true},
		{"negative origin", MergeRange{-1, 0, 0, 0}, true},
		{"end before start", MergeRange{3, 0, 1, 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTable_Validate_MergeBeyondRows(t *testing.T) {
	tbl := &Table{
		Rows:   [][]string{{"a", "b"}, {"c", "d"}},
		Merges: []MergeRange{{FirstRow: 0, FirstCol: 0, LastRow: 2, LastCol: 0}},
	}
	if err := tbl.Validate(); err == nil {
		t.Fatal("expected error for merge range beyond table height")
	}
}

func TestCoerceString(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"integral float", float64(42), "42"},
		{"negative integral float", float64(-7), "-7"},
		{"fractional float", 3.14, "3.14"},
		{"zero", float64(0), "0"},
		{"int", 9, "9"},
		{"large integral float keeps digits", float64(1e16), "10000000000000000"},
		{"large negative integral float", float64(-1e16), "-10000000000000000"},
		{"large integral float with mantissa", 1.5e16, "15000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoerceString(tt.in); got != tt.want {
				t.Errorf("CoerceString(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
