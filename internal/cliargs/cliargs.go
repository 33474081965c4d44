// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cliargs parses the benchmark driver's command-line grammar.
//
// This is deliberately not built on the standard flag package: the
// grammar here mixes bare key=value tokens (thread_num=4) with
// dash-prefixed switches (--lem_simple, -lem_simple) and a "--"
// terminator after which everything is positional, which flag does not
// express. It is grounded on the original benchmark harness's Argv
// class (src/test/arg_test.cpp in the source this toolkit was distilled
// from): a token containing '=' sets a key/value pair, a dash-prefixed
// token without '=' enables a switch, anything else before the "--"
// terminator is positional, and everything after the terminator is
// positional regardless of form.
package cliargs

import (
	"fmt"
	"strconv"
	"strings"
)

// Args is the parsed result of a command line: a set of key=value pairs,
// a set of enabled switches, and the leftover positional tokens.
type Args struct {
	KV         map[string]string
	Switches   map[string]bool
	Positional []string
}

// Parse splits argv (not including the program name) into key/value
// pairs, switches, and positional tokens per the package doc's grammar.
func Parse(argv []string) *Args {
	a := &Args{
		KV:       make(map[string]string),
		Switches: make(map[string]bool),
	}

	terminated := false
	for _, tok := range argv {
		if terminated {
			a.Positional = append(a.Positional, tok)
			continue
		}
		if tok == "--" {
			terminated = true
			continue
		}

		trimmed := strings.TrimLeft(tok, "-")
		hasDash := trimmed != tok

		if key, value, ok := strings.Cut(trimmed, "="); ok {
			a.KV[key] = value
			continue
		}
		if hasDash {
			a.Switches[trimmed] = true
			continue
		}
		a.Positional = append(a.Positional, tok)
	}

	return a
}

// Has reports whether a switch was present, in either -k or --k form.
func (a *Args) Has(key string) bool { return a.Switches[key] }

// String returns the value of a key=value pair, or def if it was absent.
func (a *Args) String(key, def string) string {
	if v, ok := a.KV[key]; ok {
		return v
	}
	return def
}

// Int returns the value of a key=value pair parsed as an int, or def if
// the key was absent. A present-but-malformed numeric argument is an
// error: callers exit 1 on it rather than silently falling back to def,
// per the spec's "exit code 1 on malformed numeric argument" contract.
func (a *Args) Int(key string, def int) (int, error) {
	v, ok := a.KV[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("cliargs: %s=%q is not a valid integer", key, v)
	}
	return n, nil
}
