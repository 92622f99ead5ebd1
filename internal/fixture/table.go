package fixture

// Row pairs an upper threshold with the payload it selects.
type Row[T any] struct {
	Threshold float64
	Value     T
}

// Table is an ordered, ascending threshold table. Tables are package-level
// constants and must not be modified.
type Table[T any] []Row[T]

// AtMost returns the payload of the first row whose threshold is >= v. When no
// row matches the first row is returned, mirroring the remotes' firmware which
// starts from the first entry.
func (t Table[T]) AtMost(v float64) T {
	for _, r := range t {
		if v <= r.Threshold {
			return r.Value
		}
	}
	return t[0].Value
}

