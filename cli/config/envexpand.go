// Package config handles mobius.yaml loading and turns its sections into
// transport, checkpoint, policy and adapter instances.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// envRef matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// ExpandEnv substitutes environment references in a config document.
//
//	${VAR}           value of VAR, empty when unset
//	${VAR:-default}  value of VAR, or default when unset or empty
//	${VAR:?message}  value of VAR; unset or empty is an error
//
// All missing required variables are reported together. A lone $ is left
// as is.
func ExpandEnv(input string, lookup func(string) (string, bool)) (string, error) {
	var (
		b       strings.Builder
		missing []error
		last    int
	)
	for _, m := range envRef.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:m[0]])
		last = m[1]

		name := input[m[2]:m[3]]
		value, _ := lookup(name)
		if value != "" || m[4] < 0 {
			b.WriteString(value)
			continue
		}
		arg := input[m[6]:m[7]]
		if input[m[4]:m[5]] == "-" {
			b.WriteString(arg)
			continue
		}
		if arg == "" {
			arg = "required"
		}
		missing = append(missing, fmt.Errorf("${%s}: %s", name, arg))
	}
	b.WriteString(input[last:])
	if len(missing) > 0 {
		return "", errors.Join(missing...)
	}
	return b.String(), nil
}
