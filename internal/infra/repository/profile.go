package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/flock/internal/domain"
	"github.com/totegamma/flock/internal/infra/database/models"
	"github.com/totegamma/flock/internal/usecase"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

var profileUpsertColumns = []string{
	"tenant_id", "full_name", "phone", "phone_verified", "birthdate", "email", "is_approved", "m_date",
}

func (r *ProfileRepository) ListWithPhone(ctx context.Context, tenantID string) ([]domain.Profile, error) {
	var rows []models.Profile
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND phone <> ''", tenantID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, translate("profile", "list profiles with phone", err)
	}
	return toDomainProfiles(rows), nil
}

func (r *ProfileRepository) ListApproved(ctx context.Context, tenantID string) ([]domain.Profile, error) {
	var rows []models.Profile
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_approved = ?", tenantID, true).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, translate("profile", "list approved profiles", err)
	}
	return toDomainProfiles(rows), nil
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (domain.Profile, error) {
	var row models.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		return domain.Profile{}, translate("profile", "get profile", err)
	}
	return toDomainProfile(row), nil
}

func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (domain.Profile, error) {
	var row models.Profile
	err := r.db.WithContext(ctx).
		Where("lower(email) = ?", domain.NormalizeEmail(email)).
		Order("id").
		Take(&row).Error
	if err != nil {
		return domain.Profile{}, translate("profile", "get profile by email", err)
	}
	return toDomainProfile(row), nil
}

func (r *ProfileRepository) Upsert(ctx context.Context, profile domain.Profile) error {
	row := toProfileModel(profile)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(profileUpsertColumns),
	}).Create(&row).Error
	return translate("profile", "upsert profile", err)
}

// Delete is idempotent; a missing row is not an error.
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Profile{}).Error
	return translate("profile", "delete profile", err)
}

func (r *ProfileRepository) DeleteMany(ctx context.Context, tenantID string, ids []string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Delete(&models.Profile{})
	if result.Error != nil {
		return 0, translate("profile", "delete profiles", result.Error)
	}
	return result.RowsAffected, nil
}

// Move writes to and removes fromID in a single transaction.
func (r *ProfileRepository) Move(ctx context.Context, fromID string, to domain.Profile) error {
	row := toProfileModel(to)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(profileUpsertColumns),
		}).Create(&row).Error; err != nil {
			return err
		}
		if fromID == to.ID {
			return nil
		}
		return tx.Where("id = ?", fromID).Delete(&models.Profile{}).Error
	})
	return translate("profile", "move profile", err)
}

func toProfileModel(p domain.Profile) models.Profile {
	return models.Profile{
		ID:            p.ID,
		TenantID:      p.TenantID,
		FullName:      p.FullName,
		Phone:         p.Phone,
		PhoneVerified: p.PhoneVerified,
		Birthdate:     p.Birthdate,
		Email:         p.Email,
		IsApproved:    p.IsApproved,
		CDate:         p.CreatedAt,
		MDate:         p.UpdatedAt,
	}
}

func toDomainProfile(m models.Profile) domain.Profile {
	return domain.Profile{
		ID:            m.ID,
		TenantID:      m.TenantID,
		FullName:      m.FullName,
		Phone:         m.Phone,
		PhoneVerified: m.PhoneVerified,
		Birthdate:     m.Birthdate,
		Email:         m.Email,
		IsApproved:    m.IsApproved,
		CreatedAt:     m.CDate,
		UpdatedAt:     m.MDate,
	}
}

func toDomainProfiles(rows []models.Profile) []domain.Profile {
	out := make([]domain.Profile, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainProfile(row))
	}
	return out
}

var _ usecase.ProfileRepository = (*ProfileRepository)(nil)
var _ usecase.ProfileMover = (*ProfileRepository)(nil)
