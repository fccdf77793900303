package domain

import "time"

// EventKind names an event that produces notices.
type EventKind string

const (
	EventGrantAdded      EventKind = "grant_added"
	EventGrantRevoked    EventKind = "grant_revoked"
	EventApprovalChanged EventKind = "approval_changed"
	EventContentPosted   EventKind = "content_posted"
	EventCommentAdded    EventKind = "comment_added"
	EventReactionAdded   EventKind = "reaction_added"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventGrantAdded, EventGrantRevoked, EventApprovalChanged,
		EventContentPosted, EventCommentAdded, EventReactionAdded:
		return true
	}
	return false
}

// Event is something that happened and that members should hear about.
// SubjectID is the affected member for grant/approval events and the content
// owner for comment/reaction events.
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	TenantID   string    `json:"tenantId"`
	ActorID    string    `json:"actorId"`
	ActorLabel string    `json:"actorLabel"`
	SubjectID  string    `json:"subjectId,omitempty"`
	RelatedID  *string   `json:"relatedId,omitempty"`
}

// Notice is the persisted record of an event for one recipient.
type Notice struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	RecipientID string    `json:"recipientId"`
	ActorLabel  string    `json:"actorLabel"`
	Kind        EventKind `json:"kind"`
	RelatedID   *string   `json:"relatedId,omitempty"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PushEndpoint is a member's current push subscription. Descriptor is the
// browser subscription JSON.
type PushEndpoint struct {
	OwnerID    string `json:"ownerId"`
	Descriptor string `json:"descriptor"`
}

// DeliveryOutcome is the result of one push attempt.
type DeliveryOutcome int

const (
	DeliveryTransientFailure DeliveryOutcome = iota
	DeliveryDelivered
	DeliveryExpired
)

func (o DeliveryOutcome) String() string {
	switch o {
	case DeliveryDelivered:
		return "delivered"
	case DeliveryExpired:
		return "expired"
	default:
		return "transient_failure"
	}
}

// DeliveryReport accounts for every push attempt of one dispatch.
type DeliveryReport struct {
	Recipients int `json:"recipients"`
	Attempted  int `json:"attempted"`
	Delivered  int `json:"delivered"`
	Pruned     int `json:"pruned"`
	Failed     int `json:"failed"`
}
