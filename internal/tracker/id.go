package tracker

import "github.com/google/uuid"

// IDProvider issues share event identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type eventIDProvider struct{}

// NewEventIDProvider returns an IDProvider issuing time-ordered UUIDv7 event ids.
func NewEventIDProvider() IDProvider {
	return eventIDProvider{}
}

func (eventIDProvider) NewID() (string, error) {
	eventID, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return eventID.String(), nil
}
