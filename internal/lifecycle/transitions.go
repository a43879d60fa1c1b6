package lifecycle

import "opscheck/backend/internal/models"

// transitionTable is the closed set of legal status moves. Any pair not
// listed is illegal; resolved and waived have no outgoing edges.
var transitionTable = map[models.Status][]models.Status{
	models.StatusOpen:            {models.StatusAcknowledged, models.StatusWaived},
	models.StatusAcknowledged:    {models.StatusActionSubmitted, models.StatusWaived},
	models.StatusActionSubmitted: {models.StatusVerified, models.StatusResolved, models.StatusWaived},
	models.StatusVerified:        {models.StatusResolved},
	models.StatusResolved:        {},
	models.StatusWaived:          {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to models.Status) bool {
	for _, next := range transitionTable[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Waivable reports whether a violation in the given status may be waived.
func Waivable(status models.Status) bool {
	return CanTransition(status, models.StatusWaived)
}
