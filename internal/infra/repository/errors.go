package repository

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/totegamma/flock/internal/domain"
)

// translate maps driver errors onto the domain's error kinds.
func translate(resource, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError{Resource: resource}
	}
	return pkgerrors.WithStack(domain.StoreUnavailableError{Op: op, Err: err})
}
