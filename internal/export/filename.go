package export

import (
	"fmt"
	"strings"

	"github.com/gridport/gridport/internal/grid"
)

const maxFilenameBytes = 255

// Windows reserved device names, matched case-insensitively against the
// part of the name before the first dot.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// ValidateFilename rejects names that would break or surprise a
// filesystem on any major platform.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("%w: filename is empty", grid.ErrInvalidInput)
	}
	if len(name) > maxFilenameBytes {
		return fmt.Errorf("%w: filename exceeds %d bytes", grid.ErrInvalidInput, maxFilenameBytes)
	}
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			return fmt.Errorf("%w: filename contains a control character", grid.ErrInvalidInput)
		case r == '/' || r == '\\':
			return fmt.Errorf("%w: filename contains a path separator", grid.ErrInvalidInput)
		case strings.ContainsRune(`<>:"|?*`, r):
			return fmt.Errorf("%w: filename contains %q", grid.ErrInvalidInput, r)
		case r == '．' || r == '。':
			// Fullwidth dots render like '.' and invite extension
			// spoofing.
			return fmt.Errorf("%w: filename contains a fullwidth dot", grid.ErrInvalidInput)
		}
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, " ") ||
		strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ") {
		return fmt.Errorf("%w: filename starts or ends with a dot or space", grid.ErrInvalidInput)
	}
	stem := name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		stem = name[:i]
	}
	if reservedNames[strings.ToUpper(stem)] {
		return fmt.Errorf("%w: %q is a reserved device name", grid.ErrInvalidInput, stem)
	}
	return nil
}

// EnsureExtension appends the format's extension unless the name
// already carries it (case-insensitive).
func EnsureExtension(name string, f Format) string {
	ext := f.Extension()
	if strings.HasSuffix(strings.ToLower(name), ext) {
		return name
	}
	return name + ext
}
