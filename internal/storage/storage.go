// Package storage writes the output set of a run. Files are staged in a
// hidden directory next to the destination and committed with a single
// rename, so a failed run leaves nothing behind. Committed sets can also
// be published to S3.
package storage

import (
	"context"
	"io"
)

// Uploader publishes one object and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
}
