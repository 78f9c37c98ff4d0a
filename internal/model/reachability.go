package model

// Reachability is the result the external bytecode analyzer reports for a
// dependency. Absence of a result is Unknown and is treated conservatively,
// like Reachable, everywhere a decision depends on it.
type Reachability string

const (
	ReachabilityUnknown     Reachability = "unknown"
	ReachabilityReachable   Reachability = "reachable"
	ReachabilityUnreachable Reachability = "unreachable"
)

// CountsAsReachable reports whether the value must be treated as reachable.
func (r Reachability) CountsAsReachable() bool {
	return r != ReachabilityUnreachable
}
