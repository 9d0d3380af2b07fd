package audio

import (
	"context"
	"io"
)

// File is what the attachment service knows about an upload before download.
type File struct {
	ID   string
	Path string // service-side path; its extension drives format detection
	Size int64
}

// Source resolves attachment references and streams their content.
type Source interface {
	Resolve(ctx context.Context, id string) (File, error)
	Download(ctx context.Context, path string, w io.Writer) (int64, error)
}
