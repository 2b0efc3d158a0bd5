package txn

import "fmt"

// ResourceKind names a piece of shared ledger state guarded by its own lock.
// Locks are always acquired in ascending ResourceKind order, which matches
// the alphabetical order of the names.
type ResourceKind int

const (
	Cash ResourceKind = iota
	Portfolio
	Positions
	numResources
)

// AllResources lists every resource in lock order.
var AllResources = []ResourceKind{Cash, Portfolio, Positions}

func (k ResourceKind) String() string {
	switch k {
	case Cash:
		return "cash"
	case Portfolio:
		return "portfolio"
	case Positions:
		return "positions"
	}
	return fmt.Sprintf("resource(%d)", int(k))
}

func (k ResourceKind) valid() bool {
	return k >= 0 && k < numResources
}

// ordered returns the distinct resources in lock order.
func ordered(resources []ResourceKind) ([]ResourceKind, error) {
	var seen [numResources]bool
	for _, r := range resources {
		if !r.valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownResource, r)
		}
		seen[r] = true
	}
	out := make([]ResourceKind, 0, len(resources))
	for k := ResourceKind(0); k < numResources; k++ {
		if seen[k] {
			out = append(out, k)
		}
	}
	return out, nil
}
