package usecase

import (
	"context"

	"github.com/totegamma/flock/internal/domain"
)

// ProfileRepository defines persistence/lookup for member profiles.
type ProfileRepository interface {
	ListWithPhone(ctx context.Context, tenantID string) ([]domain.Profile, error)
	ListApproved(ctx context.Context, tenantID string) ([]domain.Profile, error)
	Get(ctx context.Context, id string) (domain.Profile, error)
	GetByEmail(ctx context.Context, email string) (domain.Profile, error)
	Upsert(ctx context.Context, profile domain.Profile) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, tenantID string, ids []string) (int64, error)
}

// ProfileMover is implemented by profile stores that can replace a row under a
// new id atomically.
type ProfileMover interface {
	Move(ctx context.Context, fromID string, to domain.Profile) error
}

// GrantRepository defines persistence/lookup for authorization grants.
// Emails passed in are already normalized.
type GrantRepository interface {
	Upsert(ctx context.Context, grant domain.Grant) error
	GetByEmail(ctx context.Context, email string) (domain.Grant, error)
	SearchByEmail(ctx context.Context, fragment string) ([]domain.Grant, error)
	ListByRole(ctx context.Context, tenantID string, role domain.Role) ([]domain.Grant, error)
	Delete(ctx context.Context, email string) error
}

// NoticeRepository stores notices. InsertMany ignores rows whose id already exists.
type NoticeRepository interface {
	InsertMany(ctx context.Context, notices []domain.Notice) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notice, error)
	MarkRead(ctx context.Context, recipientID, noticeID string) error
}

// PushEndpointRepository stores one push subscription per owner.
type PushEndpointRepository interface {
	Upsert(ctx context.Context, endpoint domain.PushEndpoint) error
	ListByOwners(ctx context.Context, ownerIDs []string) ([]domain.PushEndpoint, error)
	// Delete removes the owner's row only while it still holds descriptor.
	Delete(ctx context.Context, ownerID, descriptor string) error
}

// PushTransport delivers one payload to one endpoint.
type PushTransport interface {
	Send(ctx context.Context, endpoint domain.PushEndpoint, payload []byte) domain.DeliveryOutcome
}

// SignalPublisher mirrors events onto realtime channels.
type SignalPublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// Notifier is the slice of NotificationUsecase other usecases depend on.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) (domain.DeliveryReport, error)
}
