package topicmux

import "fmt"

// UnknownSubscriptionError is returned by Unsubscribe when no
// subscription with the given id is live. An id is unknown both before
// it is ever issued and immediately after it has been removed.
type UnknownSubscriptionError struct {
	ID SubscriptionID
}

func (e *UnknownSubscriptionError) Error() string {
	return fmt.Sprintf("topicmux: there is no subscription with id %d", e.ID)
}
