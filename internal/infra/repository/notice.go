package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/flock/internal/domain"
	"github.com/totegamma/flock/internal/infra/database/models"
	"github.com/totegamma/flock/internal/usecase"
)

type NoticeRepository struct {
	db *gorm.DB
}

func NewNoticeRepository(db *gorm.DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// InsertMany writes all notices in one statement; existing ids are skipped.
func (r *NoticeRepository) InsertMany(ctx context.Context, notices []domain.Notice) error {
	if len(notices) == 0 {
		return nil
	}
	rows := make([]models.Notice, 0, len(notices))
	for _, n := range notices {
		rows = append(rows, models.Notice{
			ID:          n.ID,
			TenantID:    n.TenantID,
			RecipientID: n.RecipientID,
			ActorLabel:  n.ActorLabel,
			Kind:        string(n.Kind),
			RelatedID:   n.RelatedID,
			IsRead:      n.IsRead,
			CDate:       n.CreatedAt,
		})
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoNothing: true,
	}).Create(&rows).Error
	return translate("notice", "insert notices", err)
}

func (r *NoticeRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notice, error) {
	var rows []models.Notice
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("c_date DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, translate("notice", "list notices", err)
	}

	out := make([]domain.Notice, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Notice{
			ID:          row.ID,
			TenantID:    row.TenantID,
			RecipientID: row.RecipientID,
			ActorLabel:  row.ActorLabel,
			Kind:        domain.EventKind(row.Kind),
			RelatedID:   row.RelatedID,
			IsRead:      row.IsRead,
			CreatedAt:   row.CDate,
		})
	}
	return out, nil
}

func (r *NoticeRepository) MarkRead(ctx context.Context, recipientID, noticeID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Notice{}).
		Where("id = ? AND recipient_id = ?", noticeID, recipientID).
		Update("is_read", true)
	if result.Error != nil {
		return translate("notice", "mark notice read", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "notice"}
	}
	return nil
}

var _ usecase.NoticeRepository = (*NoticeRepository)(nil)
