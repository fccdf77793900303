package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/flock/internal/domain"
	"github.com/totegamma/flock/internal/infra/database/models"
	"github.com/totegamma/flock/internal/usecase"
)

type GrantRepository struct {
	db *gorm.DB
}

func NewGrantRepository(db *gorm.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

func (r *GrantRepository) Upsert(ctx context.Context, grant domain.Grant) error {
	row := models.Grant{
		Email:    domain.NormalizeEmail(grant.Email),
		Role:     string(grant.Role),
		TenantID: grant.TenantID,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "tenant_id"}),
	}).Create(&row).Error
	return translate("grant", "upsert grant", err)
}

func (r *GrantRepository) GetByEmail(ctx context.Context, email string) (domain.Grant, error) {
	var row models.Grant
	err := r.db.WithContext(ctx).Where("email = ?", domain.NormalizeEmail(email)).Take(&row).Error
	if err != nil {
		return domain.Grant{}, translate("grant", "get grant", err)
	}
	return toDomainGrant(row), nil
}

// SearchByEmail returns grants whose key contains fragment.
func (r *GrantRepository) SearchByEmail(ctx context.Context, fragment string) ([]domain.Grant, error) {
	var rows []models.Grant
	err := r.db.WithContext(ctx).
		Where("email LIKE ? ESCAPE '\\'", "%"+escapeLike(fragment)+"%").
		Order("email").
		Find(&rows).Error
	if err != nil {
		return nil, translate("grant", "search grants", err)
	}
	return toDomainGrants(rows), nil
}

func (r *GrantRepository) ListByRole(ctx context.Context, tenantID string, role domain.Role) ([]domain.Grant, error) {
	var rows []models.Grant
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND role = ?", tenantID, string(role)).
		Order("email").
		Find(&rows).Error
	if err != nil {
		return nil, translate("grant", "list grants by role", err)
	}
	return toDomainGrants(rows), nil
}

func (r *GrantRepository) Delete(ctx context.Context, email string) error {
	result := r.db.WithContext(ctx).Where("email = ?", domain.NormalizeEmail(email)).Delete(&models.Grant{})
	if result.Error != nil {
		return translate("grant", "delete grant", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "grant"}
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func toDomainGrant(m models.Grant) domain.Grant {
	return domain.Grant{
		Email:    m.Email,
		Role:     domain.Role(m.Role),
		TenantID: m.TenantID,
	}
}

func toDomainGrants(rows []models.Grant) []domain.Grant {
	out := make([]domain.Grant, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainGrant(row))
	}
	return out
}

var _ usecase.GrantRepository = (*GrantRepository)(nil)
