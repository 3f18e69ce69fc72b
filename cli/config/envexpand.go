// Package config loads erldb.yaml, the defaults file for erldb commands.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRef matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// MissingEnvError reports a ${VAR:?message} reference to an unset variable.
type MissingEnvError struct {
	Name    string
	Message string
}

func (e *MissingEnvError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("environment variable %s is required", e.Name)
	}
	return fmt.Sprintf("environment variable %s is required: %s", e.Name, e.Message)
}

// ExpandEnv substitutes environment references in input.
//
//	${VAR}          value of VAR, or "" when unset
//	${VAR:-default} value of VAR, or default when unset or empty
//	${VAR:?message} value of VAR, or a *MissingEnvError when unset or empty
//
// The first missing required variable stops expansion.
func ExpandEnv(input string) (string, error) {
	var b strings.Builder
	last := 0
	for _, m := range envRef.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:m[0]])
		last = m[1]

		name := input[m[2]:m[3]]
		value := os.Getenv(name)
		if value != "" || m[4] < 0 {
			b.WriteString(value)
			continue
		}
		arg := input[m[6]:m[7]]
		if input[m[4]:m[5]] == "?" {
			return "", &MissingEnvError{Name: name, Message: arg}
		}
		b.WriteString(arg)
	}
	b.WriteString(input[last:])
	return b.String(), nil
}
