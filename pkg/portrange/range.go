// pkg/portrange/range.go
// Contiguous port ranges: parsing, iteration, set complement

package portrange

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Port domain bounds
const (
	MinPort = 1
	MaxPort = 65535
)

// ErrInvalidRange is returned for ranges outside the port domain or with From > To
var ErrInvalidRange = errors.New("invalid port range")

// Range is an inclusive, immutable port interval
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// New validates and returns the range [from, to]
func New(from, to int) (Range, error) {
	if from < MinPort || to > MaxPort {
		return Range{}, fmt.Errorf("%w: %d-%d (ports must be in %d..%d)", ErrInvalidRange, from, to, MinPort, MaxPort)
	}
	if from > to {
		return Range{}, fmt.Errorf("%w: start %d greater than end %d", ErrInvalidRange, from, to)
	}
	return Range{From: from, To: to}, nil
}

// Parse accepts "80" or "1-1024"
func Parse(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("%w: empty range", ErrInvalidRange)
	}

	lo, hi, isRange := strings.Cut(s, "-")
	from, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	if !isRange {
		return New(from, from)
	}

	to, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	return New(from, to)
}

// Count returns the number of ports in the range
func (r Range) Count() int {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// String returns "from-to"
func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// Ports materialises the range in ascending order
func (r Range) Ports() []int {
	ports := make([]int, 0, r.Count())
	it := r.Iterator()
	for {
		p, ok := it.Next()
		if !ok {
			return ports
		}
		ports = append(ports, p)
	}
}

// Complement returns every port of r that is not in exclude, ascending.
// exclude need not be sorted or unique.
func (r Range) Complement(exclude []int) []int {
	sorted := slices.Clone(exclude)
	slices.Sort(sorted)

	out := make([]int, 0, r.Count())
	it := r.Iterator()
	for {
		p, ok := it.Next()
		if !ok {
			return out
		}
		if _, found := slices.BinarySearch(sorted, p); !found {
			out = append(out, p)
		}
	}
}

// Iterator walks a range in ascending order
type Iterator struct {
	r       Range
	current int
	started bool
}

// Iterator returns a fresh iterator positioned before r.From
func (r Range) Iterator() *Iterator {
	return &Iterator{r: r}
}

// Next returns the next port and true, or 0 and false when done
func (it *Iterator) Next() (int, bool) {
	if !it.started {
		if it.r.Count() == 0 {
			return 0, false
		}
		it.started = true
		it.current = it.r.From
		return it.current, true
	}
	if it.current >= it.r.To {
		return 0, false
	}
	it.current++
	return it.current, true
}

// SizeInfo describes how long a range may take to probe
type SizeInfo struct {
	Total     int
	WorstCase time.Duration // every probe running into the timeout
	Warning   string
}

// CheckSize estimates the worst-case run time of probing r with the given
// concurrency and per-probe timeout, and returns a warning for long runs.
func CheckSize(r Range, concurrency int, timeout time.Duration) SizeInfo {
	info := SizeInfo{Total: r.Count()}
	if concurrency < 1 {
		concurrency = 1
	}

	waves := (info.Total + concurrency - 1) / concurrency
	info.WorstCase = time.Duration(waves) * timeout

	switch {
	case timeout > 0 && info.WorstCase > time.Hour:
		info.Warning = fmt.Sprintf("%d ports at concurrency %d may take up to %s if the ports are filtered; raise --concurrent or lower --timeout",
			info.Total, concurrency, info.WorstCase)
	case info.Total > 10000 && concurrency < 10:
		info.Warning = fmt.Sprintf("%d ports with only %d concurrent probes", info.Total, concurrency)
	}

	return info
}
