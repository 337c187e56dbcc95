package status

import "recruitrack/internal/model"

// transitions lists the forward moves allowed from each status.
// Statuses missing from the table only accept a rejection.
var transitions = map[model.Status][]model.Status{
	model.StatusApplied:       {model.StatusAcknowledged, model.StatusScreening, model.StatusInterview, model.StatusRejected},
	model.StatusAcknowledged:  {model.StatusScreening, model.StatusInterview, model.StatusOffer, model.StatusRejected},
	model.StatusScreening:     {model.StatusInterview, model.StatusTechnicalTest, model.StatusOffer, model.StatusRejected},
	model.StatusInterview:     {model.StatusTechnicalTest, model.StatusOffer, model.StatusOnHold, model.StatusRejected},
	model.StatusTechnicalTest: {model.StatusOffer, model.StatusRejected},
	model.StatusOffer:         {model.StatusAccepted, model.StatusRejected},
}

// CanTransition reports whether an application may move from current to next.
//
// Rejection is reachable from every non-terminal status. Terminal statuses
// (rejected, accepted) refuse everything, so a rescinded offer after
// acceptance must be recorded by a user. Same-status moves are refused.
func CanTransition(current, next model.Status) bool {
	if !current.Valid() || !next.Valid() {
		return false
	}
	if current == next || current.IsTerminal() {
		return false
	}
	if next == model.StatusRejected {
		return true
	}
	for _, s := range transitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// Allowed returns the statuses reachable from current.
func Allowed(current model.Status) []model.Status {
	var out []model.Status
	for _, s := range model.AllStatuses {
		if CanTransition(current, s) {
			out = append(out, s)
		}
	}
	return out
}
