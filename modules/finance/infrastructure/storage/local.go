// Package storage implements attachment relocation on the local filesystem.
package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"

	domain "github.com/ledgerdesk/ledgerdesk/modules/finance/domain/storage"
)

type LocalRelocator struct{}

func NewLocalRelocator() domain.Relocator {
	return &LocalRelocator{}
}

// Move renames the file into place, creating destination directories as
// needed. Rename is atomic on the same filesystem; a failure leaves the
// source untouched.
func (r *LocalRelocator) Move(ctx context.Context, sourcePath, destinationPath string) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return errors.Wrap(err, "failed to create destination directory")
	}
	if err := os.Rename(sourcePath, destinationPath); err != nil {
		return errors.Wrap(err, "failed to move file")
	}
	return nil
}

func (r *LocalRelocator) Write(ctx context.Context, data []byte, destinationPath string) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return errors.Wrap(err, "failed to create destination directory")
	}
	if err := os.WriteFile(destinationPath, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write file")
	}
	return nil
}
