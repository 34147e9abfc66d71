package booking

// SeatsConsumed sums the seats of bookings whose status holds capacity
// (accepted or completed). Pending bookings reserve nothing.
func SeatsConsumed(bookings []*Booking) int {
	total := 0
	for _, b := range bookings {
		if b.Status().ConsumesSeats() {
			total += b.SeatsRequested()
		}
	}
	return total
}

// RemainingSeats is capacity minus SeatsConsumed. It is never persisted.
func RemainingSeats(capacity int, bookings []*Booking) int {
	return capacity - SeatsConsumed(bookings)
}
