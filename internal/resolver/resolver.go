// Package resolver maps batch worker names to IPv4 addresses, special-casing
// the NO_DNS-style HTCondor naming convention that embeds the address in the
// hostname itself.
package resolver

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// ErrUnresolvable is returned when a worker name cannot be resolved to an
// IPv4 address by any available method.
var ErrUnresolvable = errors.New("resolver: cannot resolve IPv4 address")

// dashedQuad matches names like "10-20-30-40.example.cern.ch": four 1-3
// digit groups joined by dashes, followed by a dot and any suffix.
var dashedQuad = regexp.MustCompile(`^(([0-9]{1,3}-){3}[0-9]{1,3})\.`)

// Resolve returns the IPv4 address for name. If name matches the dashed-quad
// NO_DNS pattern, the address is reconstructed from the name directly and no
// DNS lookup is performed. Otherwise a normal host lookup is attempted.
func Resolve(name string) (string, error) {
	if m := dashedQuad.FindStringSubmatch(name); m != nil {
		return strings.ReplaceAll(m[1], "-", "."), nil
	}

	addrs, err := net.LookupHost(name)
	if err != nil || len(addrs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnresolvable, name)
	}
	return addrs[0], nil
}
