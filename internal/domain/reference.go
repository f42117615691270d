package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// ReferenceKind tags which variant an ImageReference holds.
type ReferenceKind int

const (
	ReferenceURL ReferenceKind = iota + 1
	ReferenceUpload
)

func (k ReferenceKind) String() string {
	switch k {
	case ReferenceURL:
		return "url"
	case ReferenceUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// ImageReference points at the image to classify: either a remote URL or an
// uploaded byte buffer. It is immutable once constructed.
type ImageReference struct {
	kind        ReferenceKind
	url         string
	data        []byte
	contentType string
}

// NewURLReference validates imageURL and wraps it in a reference.
func NewURLReference(imageURL string) (ImageReference, error) {
	trimmed := strings.TrimSpace(imageURL)
	if trimmed == "" {
		return ImageReference{}, &InputError{Field: "image_url", Message: "URL cannot be empty"}
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ImageReference{}, &InputError{Field: "image_url", Message: "invalid URL format", Err: err}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ImageReference{}, &InputError{Field: "image_url", Message: fmt.Sprintf("URL scheme %q not allowed", parsed.Scheme)}
	}
	if parsed.Host == "" {
		return ImageReference{}, &InputError{Field: "image_url", Message: "URL must have a valid host"}
	}

	return ImageReference{kind: ReferenceURL, url: parsed.String()}, nil
}

// NewUploadReference copies data into a new upload reference.
func NewUploadReference(data []byte, contentType string) (ImageReference, error) {
	if len(data) == 0 {
		return ImageReference{}, &InputError{Field: "file", Message: "uploaded file is empty"}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return ImageReference{
		kind:        ReferenceUpload,
		data:        buf,
		contentType: strings.TrimSpace(contentType),
	}, nil
}

func (r ImageReference) Kind() ReferenceKind { return r.kind }

// URL is empty for upload references.
func (r ImageReference) URL() string { return r.url }

// Data returns the uploaded bytes. Callers must not modify the slice.
func (r ImageReference) Data() []byte { return r.data }

func (r ImageReference) ContentType() string { return r.contentType }

// String describes the reference for logs without dumping image bytes.
func (r ImageReference) String() string {
	switch r.kind {
	case ReferenceURL:
		return r.url
	case ReferenceUpload:
		return fmt.Sprintf("upload(%d bytes, %s)", len(r.data), r.contentType)
	default:
		return "invalid reference"
	}
}
