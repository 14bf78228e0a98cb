// Package media classifies attachments and hands them to the object
// store that hosts them.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
)

// Kind is the message content type derived from an attachment.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var (
	// ErrUnsupportedType is returned for attachments that are neither
	// image/* nor video/*.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrUploadFailed wraps any failure of the upload collaborator.
	ErrUploadFailed = errors.New("media upload failed")
)

// File is an attachment received from a client.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Result is a stored attachment.
type Result struct {
	URL  string
	Kind Kind
}

// Uploader stores attachments and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, f File, kind Kind) (string, error)
}

// KindOf maps a MIME type to a content kind.
func KindOf(contentType string) (Kind, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage, nil
	case strings.HasPrefix(mt, "video/"):
		return KindVideo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, mt)
}

// Store classifies f and uploads it. Classification happens first so an
// unsupported file never reaches the uploader.
func Store(ctx context.Context, up Uploader, f File) (Result, error) {
	kind, err := KindOf(f.ContentType)
	if err != nil {
		return Result{}, err
	}
	if up == nil {
		return Result{}, fmt.Errorf("%w: no media storage configured", ErrUploadFailed)
	}
	url, err := up.Upload(ctx, f, kind)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return Result{URL: url, Kind: kind}, nil
}
