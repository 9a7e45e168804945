// Package storage declares the attachment relocation boundary. Implementations
// move bytes; callers treat failures as logged-and-continue, never as a
// reason to abort an archive or delete.
package storage

import "context"

type Relocator interface {
	// Move relocates an existing file. A failed move leaves the source in
	// place; files are never destroyed by relocation.
	Move(ctx context.Context, sourcePath, destinationPath string) error
	// Write stores bytes at destinationPath, creating parents as needed.
	Write(ctx context.Context, data []byte, destinationPath string) error
}
