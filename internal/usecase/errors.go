package usecase

import (
	"errors"

	"github.com/totegamma/flock/internal/domain"
)

// storeError tags err as a transient store failure unless it already carries a
// more specific domain meaning.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStoreUnavailable) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) {
		return err
	}
	return domain.StoreUnavailableError{Op: op, Err: err}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
