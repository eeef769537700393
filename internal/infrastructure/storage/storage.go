package storage

import (
	"context"
	"io"
)

// Storage persists uploaded payment screenshots under an object name chosen
// by the caller.
type Storage interface {
	Save(ctx context.Context, objectName string, r io.Reader, size int64) error
}
