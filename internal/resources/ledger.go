package resources

import "fmt"

// InsufficientError is returned by Ledger.Debit when any single resource
// would go negative. Shortfall holds the missing amount per resource.
type InsufficientError struct {
	Shortfall Amounts
}

func (e *InsufficientError) Error() string {
	s := "insufficient resources:"
	for i, v := range e.Shortfall {
		if v > 0 {
			s += fmt.Sprintf(" %s -%d.%03d", Type(i), v/Milli, v%Milli)
		}
	}
	return s
}

// Ledger is the single owner of a settlement's resource balances. No other
// component mutates stock directly; construction and production go through
// Credit/Debit, which is what keeps all-or-nothing submission enforceable.
type Ledger struct {
	stock    Amounts
	capacity int64 // Per-resource storage ceiling in milliunits. 0 = uncapped.
}

// NewLedger creates a ledger with the given opening stock and per-resource
// capacity ceiling (0 for uncapped).
func NewLedger(opening Amounts, capacity int64) *Ledger {
	return &Ledger{stock: opening, capacity: capacity}
}

// Stock returns a copy of the current balances.
func (l *Ledger) Stock() Amounts {
	return l.stock
}

// Capacity returns the per-resource storage ceiling in milliunits (0 = uncapped).
func (l *Ledger) Capacity() int64 {
	return l.capacity
}

// SetCapacity updates the storage ceiling. Existing stock above the new
// ceiling is kept; it only stops further credits.
func (l *Ledger) SetCapacity(capacity int64) {
	l.capacity = capacity
}

// Credit adds amounts to the ledger, clamping each resource to the capacity
// ceiling when one is set. It returns whatever was lost to the clamp.
func (l *Ledger) Credit(a Amounts) (overflow Amounts) {
	for i, v := range a {
		if v < 0 {
			continue // Negative credits are a programming error; ignore rather than corrupt.
		}
		next := l.stock[i] + v
		if l.capacity > 0 && next > l.capacity {
			overflow[i] = next - l.capacity
			next = l.capacity
		}
		l.stock[i] = next
	}
	return overflow
}

// Debit removes amounts from the ledger. The whole operation is
// all-or-nothing: if any single resource would go negative, nothing is
// removed and an *InsufficientError carrying the per-resource shortfall is
// returned.
func (l *Ledger) Debit(a Amounts) error {
	var short Amounts
	insufficient := false
	for i, v := range a {
		if v > l.stock[i] {
			short[i] = v - l.stock[i]
			insufficient = true
		}
	}
	if insufficient {
		return &InsufficientError{Shortfall: short}
	}
	for i, v := range a {
		l.stock[i] -= v
	}
	return nil
}

// Sufficient reports whether a debit of the given amounts would succeed.
func (l *Ledger) Sufficient(a Amounts) bool {
	for i, v := range a {
		if v > l.stock[i] {
			return false
		}
	}
	return true
}

// ApplyNet credits positive deltas and debits negative ones, flooring at
// zero. This is the production/consumption path: a settlement that cannot
// cover consumption simply runs dry, it never goes negative.
func (l *Ledger) ApplyNet(delta Amounts) {
	for i, v := range delta {
		switch {
		case v > 0:
			next := l.stock[i] + v
			if l.capacity > 0 && next > l.capacity {
				next = l.capacity
			}
			l.stock[i] = next
		case v < 0:
			next := l.stock[i] + v
			if next < 0 {
				next = 0
			}
			l.stock[i] = next
		}
	}
}
