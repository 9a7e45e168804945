package payment

type RecordedEvent struct {
	Result  *Payment
	ActorID uint
	// PendingReview is set when the payment awaits admin review.
	PendingReview bool
}

type ReviewedEvent struct {
	PaymentID uint
	InvoiceID uint
	CreatorID uint
	ActorID   uint
	Approved  bool
	Note      string
}
