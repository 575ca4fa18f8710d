package service

import "github.com/palpitai/platform/internal/domain"

// internalErr passes an *AppError through untouched and wraps anything else as
// an internal error.
func internalErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	return domain.ErrInternal(msg, err)
}
