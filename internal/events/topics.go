package events

// Topic constants for ticket events.
const (
	TopicTicketCreated      = "ticket.created"
	TopicOrderAdded         = "ticket.order_added"
	TopicOrdersCancelled    = "ticket.orders_cancelled"
	TopicOrdersExtracted    = "ticket.orders_extracted"
	TopicOrdersSubmitted    = "ticket.orders_submitted"
	TopicCalculationChanged = "ticket.calculation_changed"
	TopicPaymentAdded       = "ticket.payment_added"
	TopicPaymentRemoved     = "ticket.payment_removed"
	TopicTagsChanged        = "ticket.tags_changed"
	TopicResourceChanged    = "ticket.resource_changed"
	TopicTicketClosed       = "ticket.closed"
)

// DefaultTopics returns every topic the ticket service emits.
func DefaultTopics() []string {
	return []string{
		TopicTicketCreated,
		TopicOrderAdded,
		TopicOrdersCancelled,
		TopicOrdersExtracted,
		TopicOrdersSubmitted,
		TopicCalculationChanged,
		TopicPaymentAdded,
		TopicPaymentRemoved,
		TopicTagsChanged,
		TopicResourceChanged,
		TopicTicketClosed,
	}
}
