package repository

import (
	"errors"

	"clinic-operations-backend/internal/apperr"

	"gorm.io/gorm"
)

// translate maps gorm failures onto the application error taxonomy.
func translate(op, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource, id)
	}
	return apperr.Persistence(op, err)
}
