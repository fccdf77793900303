package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/flock/internal/domain"
	"github.com/totegamma/flock/internal/infra/database/models"
	"github.com/totegamma/flock/internal/usecase"
)

type PushEndpointRepository struct {
	db *gorm.DB
}

func NewPushEndpointRepository(db *gorm.DB) *PushEndpointRepository {
	return &PushEndpointRepository{db: db}
}

func (r *PushEndpointRepository) Upsert(ctx context.Context, endpoint domain.PushEndpoint) error {
	row := models.PushSubscription{
		OwnerID:    endpoint.OwnerID,
		Descriptor: endpoint.Descriptor,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"descriptor", "m_date"}),
	}).Create(&row).Error
	return translate("push endpoint", "upsert push endpoint", err)
}

func (r *PushEndpointRepository) ListByOwners(ctx context.Context, ownerIDs []string) ([]domain.PushEndpoint, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var rows []models.PushSubscription
	err := r.db.WithContext(ctx).
		Where("owner_id IN ?", ownerIDs).
		Order("owner_id").
		Find(&rows).Error
	if err != nil {
		return nil, translate("push endpoint", "list push endpoints", err)
	}

	out := make([]domain.PushEndpoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.PushEndpoint{OwnerID: row.OwnerID, Descriptor: row.Descriptor})
	}
	return out, nil
}

// Delete leaves a row that was re-subscribed after descriptor was read.
func (r *PushEndpointRepository) Delete(ctx context.Context, ownerID, descriptor string) error {
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND descriptor = ?", ownerID, descriptor).
		Delete(&models.PushSubscription{}).Error
	return translate("push endpoint", "delete push endpoint", err)
}

var _ usecase.PushEndpointRepository = (*PushEndpointRepository)(nil)
