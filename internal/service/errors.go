package service

import (
	"errors"
	"fmt"

	"parel-ledger/pkg/apperror"
)

// asAppError passes typed business/contention errors through unchanged and
// wraps everything else as an internal failure with the failing step named.
func asAppError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}
