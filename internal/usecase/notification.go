package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/totegamma/flock/internal/domain"
)

const (
	defaultMaxParallel = 16
	defaultNoticeLimit = 50
	maxNoticeLimit     = 200
)

type NotificationUsecase struct {
	notices     NoticeRepository
	endpoints   PushEndpointRepository
	profiles    ProfileRepository
	grants      GrantRepository
	transport   PushTransport
	signal      SignalPublisher
	maxParallel int
	logger      *zap.Logger
	now         func() time.Time
}

func NewNotificationUsecase(
	notices NoticeRepository,
	endpoints PushEndpointRepository,
	profiles ProfileRepository,
	grants GrantRepository,
	transport PushTransport,
	signal SignalPublisher,
	maxParallel int,
	logger *zap.Logger,
) *NotificationUsecase {
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationUsecase{
		notices:     notices,
		endpoints:   endpoints,
		profiles:    profiles,
		grants:      grants,
		transport:   transport,
		signal:      signal,
		maxParallel: maxParallel,
		logger:      logger.With(zap.String("module", "notify")),
		now:         time.Now,
	}
}

// Notify persists one notice per recipient of event and then pushes to every
// recipient endpoint in parallel. Only a failure to persist the notices is
// returned; push failures are counted in the report.
func (uc *NotificationUsecase) Notify(ctx context.Context, event domain.Event) (domain.DeliveryReport, error) {
	ctx, span := tracer.Start(ctx, "Notification.Usecase.Notify")
	defer span.End()

	if !event.Kind.Valid() {
		return domain.DeliveryReport{}, domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown event kind %q", event.Kind)}
	}
	if event.TenantID == "" {
		return domain.DeliveryReport{}, domain.ValidationError{Field: "tenantId", Reason: "is required"}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("Kind", string(event.Kind)), attribute.String("EventId", event.ID))

	recipients, err := uc.recipients(ctx, event)
	if err != nil {
		err = storeError("resolve recipients", err)
		span.RecordError(err)
		return domain.DeliveryReport{}, err
	}

	report := domain.DeliveryReport{Recipients: len(recipients)}
	if len(recipients) == 0 {
		return report, nil
	}

	now := uc.now()
	notices := make([]domain.Notice, 0, len(recipients))
	for _, recipient := range recipients {
		notices = append(notices, domain.Notice{
			ID:          noticeID(event.ID, recipient),
			TenantID:    event.TenantID,
			RecipientID: recipient,
			ActorLabel:  event.ActorLabel,
			Kind:        event.Kind,
			RelatedID:   event.RelatedID,
			CreatedAt:   now,
		})
	}

	if err := uc.notices.InsertMany(ctx, notices); err != nil {
		err = storeError("insert notices", err)
		span.RecordError(err)
		return report, err
	}

	uc.mirror(ctx, notices)

	endpoints, err := uc.endpoints.ListByOwners(ctx, recipients)
	if err != nil {
		uc.logger.Warn("push endpoints unavailable; notices persisted without push",
			zap.String("event", event.ID),
			zap.Error(err),
		)
		span.RecordError(err)
		return report, nil
	}
	if len(endpoints) == 0 || uc.transport == nil {
		return report, nil
	}

	payload, err := json.Marshal(newPushMessage(event))
	if err != nil {
		return report, nil
	}

	report = uc.deliver(ctx, endpoints, payload, report)
	span.SetAttributes(
		attribute.Int("Delivered", report.Delivered),
		attribute.Int("Pruned", report.Pruned),
		attribute.Int("Failed", report.Failed),
	)
	uc.logger.Info("event dispatched",
		zap.String("event", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.Int("recipients", report.Recipients),
		zap.Int("attempted", report.Attempted),
		zap.Int("delivered", report.Delivered),
		zap.Int("pruned", report.Pruned),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

type attemptResult int

const (
	attemptFailed attemptResult = iota
	attemptDelivered
	attemptPruned
)

// deliver sends to every endpoint and waits for all of them; one endpoint's
// failure never stops the others.
func (uc *NotificationUsecase) deliver(ctx context.Context, endpoints []domain.PushEndpoint, payload []byte, report domain.DeliveryReport) domain.DeliveryReport {
	results := make([]attemptResult, len(endpoints))

	var g errgroup.Group
	g.SetLimit(uc.maxParallel)
	for i, endpoint := range endpoints {
		g.Go(func() error {
			results[i] = uc.deliverOne(ctx, endpoint, payload)
			return nil
		})
	}
	_ = g.Wait()

	report.Attempted = len(endpoints)
	for _, r := range results {
		switch r {
		case attemptDelivered:
			report.Delivered++
		case attemptPruned:
			report.Pruned++
		default:
			report.Failed++
		}
	}
	return report
}

func (uc *NotificationUsecase) deliverOne(ctx context.Context, endpoint domain.PushEndpoint, payload []byte) (result attemptResult) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("push delivery panicked", zap.String("owner", endpoint.OwnerID), zap.Any("panic", r))
			result = attemptFailed
		}
	}()

	switch uc.transport.Send(ctx, endpoint, payload) {
	case domain.DeliveryDelivered:
		return attemptDelivered
	case domain.DeliveryExpired:
		if err := uc.endpoints.Delete(ctx, endpoint.OwnerID, endpoint.Descriptor); err != nil {
			uc.logger.Warn("failed to prune expired endpoint", zap.String("owner", endpoint.OwnerID), zap.Error(err))
			return attemptFailed
		}
		uc.logger.Debug("pruned expired endpoint", zap.String("owner", endpoint.OwnerID))
		return attemptPruned
	default:
		uc.logger.Debug("push delivery failed", zap.String("owner", endpoint.OwnerID))
		return attemptFailed
	}
}

// recipients lists who hears about event, without duplicates and never the actor.
func (uc *NotificationUsecase) recipients(ctx context.Context, event domain.Event) ([]string, error) {
	var ids []string

	switch event.Kind {
	case domain.EventContentPosted:
		members, err := uc.profiles.ListApproved(ctx, event.TenantID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			ids = append(ids, m.ID)
		}

	case domain.EventGrantAdded, domain.EventGrantRevoked, domain.EventApprovalChanged:
		if event.SubjectID != "" {
			ids = append(ids, event.SubjectID)
		}
		holders, err := uc.grants.ListByRole(ctx, event.TenantID, domain.RoleSuperAdmin)
		if err != nil {
			return nil, err
		}
		for _, holder := range holders {
			profile, err := uc.profiles.GetByEmail(ctx, holder.Email)
			if err != nil {
				if isNotFound(err) {
					continue
				}
				return nil, err
			}
			ids = append(ids, profile.ID)
		}

	case domain.EventCommentAdded, domain.EventReactionAdded:
		if event.SubjectID != "" {
			ids = append(ids, event.SubjectID)
		}
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == event.ActorID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func (uc *NotificationUsecase) mirror(ctx context.Context, notices []domain.Notice) {
	if uc.signal == nil {
		return
	}
	for _, n := range notices {
		if err := uc.signal.Publish(ctx, domain.NoticeChannel(n.RecipientID), n); err != nil {
			uc.logger.Debug("realtime mirror failed", zap.String("recipient", n.RecipientID), zap.Error(err))
		}
	}
}

// List returns the newest notices of recipientID.
func (uc *NotificationUsecase) List(ctx context.Context, recipientID string, limit int) ([]domain.Notice, error) {
	ctx, span := tracer.Start(ctx, "Notification.Usecase.List")
	defer span.End()

	if limit <= 0 {
		limit = defaultNoticeLimit
	}
	if limit > maxNoticeLimit {
		limit = maxNoticeLimit
	}
	notices, err := uc.notices.ListByRecipient(ctx, recipientID, limit)
	if err != nil {
		err = storeError("list notices", err)
		span.RecordError(err)
		return nil, err
	}
	return notices, nil
}

// MarkRead flags one of the recipient's notices as read.
func (uc *NotificationUsecase) MarkRead(ctx context.Context, recipientID, noticeID string) error {
	ctx, span := tracer.Start(ctx, "Notification.Usecase.MarkRead")
	defer span.End()

	if noticeID == "" {
		return domain.ValidationError{Field: "id", Reason: "is required"}
	}
	if err := uc.notices.MarkRead(ctx, recipientID, noticeID); err != nil {
		err = storeError("mark notice read", err)
		span.RecordError(err)
		return err
	}
	return nil
}

// Subscribe replaces the owner's push endpoint.
func (uc *NotificationUsecase) Subscribe(ctx context.Context, ownerID, descriptor string) error {
	ctx, span := tracer.Start(ctx, "Notification.Usecase.Subscribe")
	defer span.End()

	var sub struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.Unmarshal([]byte(descriptor), &sub); err != nil || strings.TrimSpace(sub.Endpoint) == "" {
		return domain.ValidationError{Field: "subscription", Reason: "must be a push subscription with an endpoint"}
	}

	if err := uc.endpoints.Upsert(ctx, domain.PushEndpoint{OwnerID: ownerID, Descriptor: descriptor}); err != nil {
		err = storeError("upsert push endpoint", err)
		span.RecordError(err)
		return err
	}
	return nil
}

// noticeID is stable for an (event, recipient) pair so a re-dispatched event
// cannot produce a second row.
func noticeID(eventID, recipientID string) string {
	sum := xxh3.HashString128(eventID + "\x00" + recipientID)
	return uuid.UUID(sum.Bytes()).String()
}

type pushMessage struct {
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Kind      domain.EventKind `json:"kind"`
	RelatedID *string          `json:"relatedId,omitempty"`
}

func newPushMessage(event domain.Event) pushMessage {
	actor := event.ActorLabel
	if actor == "" {
		actor = "Someone"
	}

	var title, body string
	switch event.Kind {
	case domain.EventGrantAdded:
		title, body = "Permissions updated", actor+" granted a new role"
	case domain.EventGrantRevoked:
		title, body = "Permissions updated", actor+" revoked a role"
	case domain.EventApprovalChanged:
		title, body = "Membership updated", actor+" changed an approval"
	case domain.EventContentPosted:
		title, body = "New post", actor+" posted something new"
	case domain.EventCommentAdded:
		title, body = "New comment", actor+" commented on your post"
	case domain.EventReactionAdded:
		title, body = "New reaction", actor+" reacted to your post"
	}

	return pushMessage{Title: title, Body: body, Kind: event.Kind, RelatedID: event.RelatedID}
}
