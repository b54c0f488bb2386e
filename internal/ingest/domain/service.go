package domain

import (
	"context"
	"errors"
)

type Service interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrMissingFile     = errors.New("missing_file")
	ErrEmptyUpload     = errors.New("empty_upload")
)
