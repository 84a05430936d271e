package bootstrap

import (
	"context"
	"errors"
	"io"
)

// ErrFileStorageDisabled is returned for uploads when no file storage is configured.
var ErrFileStorageDisabled = errors.New("file storage is not configured")

type rejectingFileStore struct{}

func (rejectingFileStore) StoreArea(context.Context, string, string, io.Reader) (string, error) {
	return "", ErrFileStorageDisabled
}
