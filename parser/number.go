package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseInteger parses an integer literal in any of the source forms:
// decimal, 0x hex, 0b binary, 0o octal, with optional underscore
// digit separators and an optional u64/i64 type suffix.
func ParseInteger(s string) (uint64, error) {
	s = strings.TrimSuffix(strings.TrimSuffix(s, "u64"), "i64")
	s = strings.ReplaceAll(s, "_", "")

	if s == "" {
		return 0, fmt.Errorf("empty integer literal")
	}

	var value uint64
	var err error
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		value, err = strconv.ParseUint(s[2:], 16, 64)
	case strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B"):
		value, err = strconv.ParseUint(s[2:], 2, 64)
	case strings.HasPrefix(s, "0o") || strings.HasPrefix(s, "0O"):
		value, err = strconv.ParseUint(s[2:], 8, 64)
	default:
		value, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("malformed integer literal %q", s)
	}
	return value, nil
}
