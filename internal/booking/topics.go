package booking

const (
	TopicBookingConfirmed = "booking.confirmed"
	TopicBookingCanceled  = "booking.canceled"
)

// Partition key = user_id, supaya notifikasi satu user terjaga urutannya.
func PartitionKey(userID string) []byte { return []byte(userID) }
