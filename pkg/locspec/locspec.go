// Package locspec parses the location specifiers accepted by the break
// command.
package locspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-delve/tinydbg/pkg/symbols"
)

// Parse resolves a location specifier to an address. The forms accepted,
// tried in order, are:
//
//	*0x401000 or 0x401000  raw address
//	15                     line number in the target's main source file
//	main.main              function name
func Parse(spec string, syms *symbols.Table) (uint64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("empty location specifier")
	}

	if addr, ok := parseAddress(spec); ok {
		return addr, nil
	}

	if syms == nil {
		return 0, fmt.Errorf("unable to resolve location %q", spec)
	}

	if line, err := strconv.Atoi(spec); err == nil {
		return syms.AddrForLine(line)
	}

	return syms.AddrForFunction(spec)
}

func parseAddress(spec string) (uint64, bool) {
	starred := strings.HasPrefix(spec, "*")
	if starred {
		spec = spec[1:]
	}
	hex := strings.TrimPrefix(strings.ToLower(spec), "0x")
	// A bare decimal without sigil or 0x prefix is a line number, not
	// an address.
	if !starred && hex == strings.ToLower(spec) {
		return 0, false
	}
	addr, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, false
	}
	return addr, true
}
