// Package attach handles incident file attachments. Files are stored inline
// as data URLs inside the incident record, so the record store stays the
// single source of truth and no blob directory has to be backed up alongside
// it.
package attach

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxFileSize caps a single attachment at 10MB. Inline storage multiplies
// every byte by 4/3, so the cap is deliberately small.
const MaxFileSize = 10 * 1024 * 1024

// File is one attachment carried inside an incident record.
type File struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	Type       string `json:"type,omitempty"`
	Size       int64  `json:"size,omitempty"`
	UploadDate string `json:"uploadDate,omitempty"`
}

// EncodeDataURL inlines raw bytes as a base64 data URL.
func EncodeDataURL(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a data URL back into its content type and bytes.
func DecodeDataURL(url string) (contentType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	contentType = strings.TrimSuffix(meta, ";base64")
	if contentType == meta {
		return "", nil, fmt.Errorf("unsupported data url encoding")
	}
	data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url payload: %w", err)
	}
	return contentType, data, nil
}

// FromMultipart ingests uploaded files one at a time. A file that fails to
// read or exceeds the size cap is logged and skipped; the rest of the batch
// still goes through.
func FromMultipart(headers []*multipart.FileHeader, logger zerolog.Logger) []File {
	out := make([]File, 0, len(headers))
	for _, header := range headers {
		f, err := fromHeader(header)
		if err != nil {
			logger.Warn().Err(err).Str("file", header.Filename).Msg("skipping attachment")
			continue
		}
		out = append(out, f)
	}
	return out
}

func fromHeader(header *multipart.FileHeader) (File, error) {
	if header.Size > MaxFileSize {
		return File{}, fmt.Errorf("file exceeds %d byte limit", MaxFileSize)
	}

	src, err := header.Open()
	if err != nil {
		return File{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxFileSize+1))
	if err != nil {
		return File{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return File{}, fmt.Errorf("file exceeds %d byte limit", MaxFileSize)
	}

	contentType := header.Header.Get("Content-Type")
	return File{
		ID:         uuid.NewString(),
		Name:       header.Filename,
		URL:        EncodeDataURL(contentType, data),
		Type:       contentType,
		Size:       int64(len(data)),
		UploadDate: time.Now().UTC().Format(time.RFC3339),
	}, nil
}
