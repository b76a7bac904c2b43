package booking

type OfferingStatus string

const (
	OfferingOpen     OfferingStatus = "OPEN"
	OfferingClosed   OfferingStatus = "CLOSED"
	OfferingArchived OfferingStatus = "ARCHIVED"
)

func (s OfferingStatus) Bookable() bool { return s == OfferingOpen }

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
)

// COMPLETED dan CANCELED terminal: tidak ada transisi keluar.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCanceled: true},
	StatusConfirmed: {StatusCompleted: true, StatusCanceled: true},
	StatusCompleted: {},
	StatusCanceled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}
