// Package resources defines the five settlement resource types and the
// per-settlement ledger that owns their balances.
package resources

// Type identifies one of the five settlement resources.
type Type uint8

const (
	Food Type = iota
	Water
	Wood
	Stone
	Ore

	// NumTypes is the number of resource types; Amounts arrays are indexed by Type.
	NumTypes = 5
)

var typeNames = [NumTypes]string{"food", "water", "wood", "stone", "ore"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// All lists every resource type in canonical order.
func All() [NumTypes]Type {
	return [NumTypes]Type{Food, Water, Wood, Stone, Ore}
}

// Critical reports whether running out of this resource stresses population
// directly (food and water) rather than just construction.
func (t Type) Critical() bool {
	return t == Food || t == Water
}

// Milli is the fixed-point scale: all ledger amounts are integer milliunits,
// so 1000 = 1.0 units. Integer milliunits keep ledger arithmetic exact.
const Milli int64 = 1000

// Amounts is a per-resource quantity vector in milliunits.
type Amounts [NumTypes]int64

// FromUnits builds an Amounts from whole-unit values.
func FromUnits(food, water, wood, stone, ore int64) Amounts {
	return Amounts{food * Milli, water * Milli, wood * Milli, stone * Milli, ore * Milli}
}

// FromFloat converts a fractional unit quantity to milliunits, truncating
// toward zero. Truncation, never rounding up — partial production is not paid.
func FromFloat(units float64) int64 {
	return int64(units * float64(Milli))
}

// Units returns the whole-unit value of a milliunit quantity, truncated.
func Units(milli int64) int64 {
	return milli / Milli
}

// IsZero reports whether every resource amount is zero.
func (a Amounts) IsZero() bool {
	for _, v := range a {
		if v != 0 {
			return false
		}
	}
	return true
}

// Add returns a + b element-wise.
func (a Amounts) Add(b Amounts) Amounts {
	var out Amounts
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

// Scale returns a with every amount multiplied by n.
func (a Amounts) Scale(n int64) Amounts {
	var out Amounts
	for i := range a {
		out[i] = a[i] * n
	}
	return out
}

// Map returns the amounts keyed by resource name in whole units as a float,
// for API payloads and logs.
func (a Amounts) Map() map[string]float64 {
	out := make(map[string]float64, NumTypes)
	for i, v := range a {
		out[Type(i).String()] = float64(v) / float64(Milli)
	}
	return out
}
