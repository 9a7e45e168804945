package masterdata

type SubmittedEvent struct {
	Result  *Request
	ActorID uint
}

type ApprovedEvent struct {
	RequestID       uint
	EntityType      EntityType
	RequesterID     uint
	ReviewerID      uint
	CreatedEntityID *uint
}

type RejectedEvent struct {
	RequestID   uint
	EntityType  EntityType
	RequesterID uint
	ReviewerID  uint
	Reason      string
}
