// Package assets keeps optional reservation attachments (posters) on local disk,
// one directory per reservation under the configured root.
package assets

import (
	"context"
	"os"
	"path/filepath"

	"auditorium-reservation/internal/pkg/errs"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/google/uuid"
)

type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

var _ shared.AssetStore = (*FileStore)(nil)

func (s *FileStore) Dir(reservationID uuid.UUID) string {
	return filepath.Join(s.root, reservationID.String())
}

// RemoveReservationAssets is idempotent; a reservation without attachments is not an error.
func (s *FileStore) RemoveReservationAssets(ctx context.Context, reservationID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Dir(reservationID)); err != nil {
		return errs.Wrapf(err, "failed to remove assets of reservation %s", reservationID)
	}
	return nil
}
