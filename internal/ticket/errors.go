package ticket

import "errors"

var (
	// ErrOrderNotOwned is returned when an operation receives an order that is not on the ticket.
	ErrOrderNotOwned = errors.New("ticket: order does not belong to ticket")
	// ErrInvalidSelection is returned when a selected quantity is zero or negative.
	ErrInvalidSelection = errors.New("ticket: selected quantity must be positive")
)
