package domain

// Result is the persisted outcome of running a rule.
//
// BuiltAt is the iteration in which the value last changed; CheckedAt is the
// iteration in which the engine last confirmed the value to be current. The
// scanner considers a dependant dirty when its CheckedAt is older than a
// dependency's BuiltAt.
type Result struct {
	Value Value

	BuiltAt   uint64
	CheckedAt uint64

	// Declared lists the keys the producing task requested while running,
	// in the order their values were delivered. Discovered lists the keys it reported after its
	// inputs were delivered. Together they form the dependency set used by
	// the scanner; discovered dependencies are scanned first.
	Declared   []Key
	Discovered []Key
}

// Dependencies yields the full dependency set in scan order.
func (r *Result) Dependencies() []Key {
	deps := make([]Key, 0, len(r.Discovered)+len(r.Declared))
	deps = append(deps, r.Discovered...)
	deps = append(deps, r.Declared...)
	return deps
}
