package ledger

import "github.com/google/uuid"

// reservationNamespace scopes name-based reservation identifiers.
var reservationNamespace = uuid.MustParse("6f1d0f3e-8a4b-4c47-9d7e-2b5f0c3a9e11")

// IDProvider issues identifiers for newly inserted documents.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// ReservationID derives the identifier shared by every reservation of one
// (announcement, association) pair.
func ReservationID(announcementID, associationID string) string {
	return uuid.NewSHA1(reservationNamespace, []byte(announcementID+"/"+associationID)).String()
}
