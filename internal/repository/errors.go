package repository

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"routine-planner/internal/model"
)

// storeErr classifies a gorm error: missing rows become NotFoundError, anything
// else is reported as a transient store failure the caller may retry.
func storeErr(op, kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.NotFoundError{Kind: kind, ID: id}
	}
	return &model.TransientStoreError{Op: op, Err: errors.WithStack(err)}
}
