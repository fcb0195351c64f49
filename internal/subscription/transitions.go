package subscription

// validTransitions lists, for each status, the statuses it may move to.
// canceled and inactive only return to active through a new purchase.
var validTransitions = map[Status][]Status{
	StatusTrial:    {StatusActive, StatusPending, StatusInactive, StatusCanceled},
	StatusPending:  {StatusActive, StatusInactive, StatusCanceled},
	StatusActive:   {StatusActive, StatusPastDue, StatusInactive, StatusCanceled},
	StatusPastDue:  {StatusActive, StatusInactive, StatusCanceled},
	StatusInactive: {StatusActive, StatusPending},
	StatusCanceled: {StatusActive, StatusPending},
}

// CanTransition reports whether a subscription may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf returns every status that may move to `to`, for use as the guard
// of a conditional status update.
func SourcesOf(to Status) []Status {
	var out []Status
	for _, from := range AllStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// AllStatuses lists the statuses in a stable order.
var AllStatuses = []Status{
	StatusTrial,
	StatusPending,
	StatusActive,
	StatusPastDue,
	StatusInactive,
	StatusCanceled,
}

// IsBlocking reports whether the status denies access outside resolution routes.
func (s Status) IsBlocking() bool {
	switch s {
	case StatusInactive, StatusPending, StatusPastDue:
		return true
	}
	return false
}
