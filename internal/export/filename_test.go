package export

import (
	"strings"
	"testing"
)

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"plain", "report", false},
		{"with extension", "report.csv", false},
		{"unicode", "レポート2024", false},
		{"spaces inside", "q1 report", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"backslash", `a\b`, true},
		{"control char", "a\x00b", true},
		{"newline", "a\nb", true},
		{"angle bracket", "a<b", true},
		{"colon", "a:b", true},
		{"pipe", "a|b", true},
		{"question mark", "a?b", true},
		{"asterisk", "a*b", true},
		{"leading dot", ".hidden", true},
		{"trailing dot", "name.", true},
		{"leading space", " name", true},
		{"trailing space", "name ", true},
		{"reserved CON", "CON", true},
		{"reserved con lowercase", "con", true},
		{"reserved with extension", "con.csv", true},
		{"reserved COM7", "COM7.xlsx", true},
		{"not reserved CONSOLE", "CONSOLE", false},
		{"fullwidth dot", "evil．csv", true},
		{"ideographic full stop", "evil。csv", true},
		{"255 bytes", strings.Repeat("a", 255), false},
		{"256 bytes", strings.Repeat("a", 256), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilename(%q) = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestEnsureExtension(t *testing.T) {
	tests := []struct {
		in     string
		format Format
		want   string
	}{
		{"report", FormatCSV, "report.csv"},
		{"report", FormatXLSX, "report.xlsx"},
		{"report.csv", FormatCSV, "report.csv"},
		{"Report.CSV", FormatCSV, "Report.CSV"},
		{"report.csv", FormatXLSX, "report.csv.xlsx"},
		{"report.xlsx", FormatXLSX, "report.xlsx"},
	}
	for _, tt := range tests {
		if got := EnsureExtension(tt.in, tt.format); got != tt.want {
			t.Errorf("EnsureExtension(%q, %v) = %q, want %q", tt.in, tt.format, got, tt.want)
		}
	}
}
