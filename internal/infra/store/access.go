package store

import "groupnotify/internal/domain/dispatch"

// accessByLevel decides access from the entity's access id alone. When
// decided is false the access id names an access collection and membership
// must be looked up.
func accessByLevel(e *dispatch.Entity, a *dispatch.Account) (allowed, decided bool) {
	if e.OwnerGUID == a.GUID {
		return true, true
	}
	switch e.AccessID {
	case dispatch.AccessPublic, dispatch.AccessLoggedIn:
		return true, true
	case dispatch.AccessPrivate:
		return false, true
	}
	return false, false
}

// subscriberPageSize is the number of relationship rows fetched per round
// trip while paging through subscribers.
const subscriberPageSize = 500
