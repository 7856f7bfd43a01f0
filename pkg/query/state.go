package query

// State is the lifecycle state of a query or a set query.
type State uint8

const (
	// Unknown is the state of a freshly registered query before its first tick.
	Unknown State = iota
	// Querying means no data is bound and the pipeline is searching.
	Querying
	// Acquiring means a match was found and is waiting to be confirmed.
	Acquiring
	// Tracking means the acquire handler fired and the binding is being kept up to date.
	Tracking
	// Unavailable means the binding was lost, or the query timed out.
	Unavailable
	// Resuming means the query lost its data and goes back to searching.
	Resuming
)

var stateNames = [...]string{
	Unknown:     "unknown",
	Querying:    "querying",
	Acquiring:   "acquiring",
	Tracking:    "tracking",
	Unavailable: "unavailable",
	Resuming:    "resuming",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "invalid"
}

// Searching reports whether the query is looking for new data.
func (s State) Searching() bool {
	return s == Unknown || s == Querying || s == Resuming
}
