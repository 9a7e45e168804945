package invoice

// Events are published after the owning transaction commits. The
// notification collaborator subscribes to them; delivery is best-effort and
// never affects the committed transition.

type CreatedEvent struct {
	Result          *Invoice
	ActorID         uint
	PendingApproval bool
}

type ApprovedEvent struct {
	InvoiceID uint
	CreatorID uint
	ActorID   uint
}

type RejectedEvent struct {
	InvoiceID uint
	CreatorID uint
	ActorID   uint
	Reason    string
}

type HeldEvent struct {
	InvoiceID uint
	CreatorID uint
	ActorID   uint
	Reason    string
}

type HoldReleasedEvent struct {
	InvoiceID uint
	CreatorID uint
	ActorID   uint
}

type ArchivedEvent struct {
	InvoiceID uint
	CreatorID uint
	ActorID   uint
	Reason    string
}

type DeletedEvent struct {
	InvoiceID     uint
	InvoiceNumber string
	ActorID       uint
	Reason        string
}
