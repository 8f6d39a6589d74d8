// internal/results/finalize.go
// Post-processing of the accumulated open ports

package results

import (
	"slices"

	"github.com/aspnmy/porttester/pkg/portrange"
)

// Finalize turns raw open ports into the reported list: sorted, without
// duplicates, without the 0 sentinel. With invert it returns the ports of r
// that are not open instead. The input is not modified.
func Finalize(open []int, r portrange.Range, invert bool) []int {
	ports := slices.Clone(open)
	slices.Sort(ports)
	ports = slices.Compact(ports)
	ports = slices.DeleteFunc(ports, func(p int) bool { return p == 0 })

	if invert {
		return r.Complement(ports)
	}
	if ports == nil {
		return []int{}
	}
	return ports
}
