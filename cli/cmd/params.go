package cmd

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseParam converts a command-line parameter into a bindable value.
//
//	null, NULL   -> nil
//	42, -7       -> int64
//	1.5, 2e3     -> float64
//	x'0aff'      -> []byte
//	'text'       -> string without the quotes
//
// Anything else is bound as text unchanged.
func ParseParam(s string) (any, error) {
	if strings.EqualFold(s, "null") {
		return nil, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if looksNumeric(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f, nil
		}
	}
	if len(s) >= 3 && (s[0] == 'x' || s[0] == 'X') && s[1] == '\'' && s[len(s)-1] == '\'' {
		b, err := hex.DecodeString(s[2 : len(s)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid blob literal %q: %w", s, err)
		}
		return b, nil
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1], nil
	}
	return s, nil
}

// ParseParams parses each parameter in order.
func ParseParams(raw []string) ([]any, error) {
	out := make([]any, len(raw))
	for i, s := range raw {
		v, err := ParseParam(s)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789+-.eE", r) {
			return false
		}
	}
	return true
}
