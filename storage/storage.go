// Package storage uploads room and event images to object storage and
// resolves the public URLs it hands out back to object names.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStorageDisabled = errors.New("file storage is not configured")
	ErrNotOurURL       = errors.New("url does not belong to this bucket")
)

type Object struct {
	Name        string
	PublicURL   string
	ContentType string
	Size        int64
}

type Uploader interface {
	Upload(ctx context.Context, prefix string, fh *multipart.FileHeader) (Object, error)
	Delete(ctx context.Context, names []string) error
	ObjectName(publicURL string) (string, error)
}

// UploadAll uploads files in order. When one upload fails, the objects
// already written are deleted before the error is returned.
func UploadAll(ctx context.Context, u Uploader, prefix string, files []*multipart.FileHeader) ([]string, error) {
	urls := make([]string, 0, len(files))
	names := make([]string, 0, len(files))
	for _, fh := range files {
		obj, err := u.Upload(ctx, prefix, fh)
		if err != nil {
			_ = u.Delete(ctx, names)
			return nil, err
		}
		urls = append(urls, obj.PublicURL)
		names = append(names, obj.Name)
	}
	return urls, nil
}

// DeleteByURL resolves each url to an object name and deletes what it can.
// URLs that don't belong to the bucket are skipped.
func DeleteByURL(ctx context.Context, u Uploader, urls []string) error {
	names := make([]string, 0, len(urls))
	for _, raw := range urls {
		name, err := u.ObjectName(raw)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	return u.Delete(ctx, names)
}

func objectName(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s/%d-%s%s", strings.Trim(prefix, "/"), time.Now().UTC().UnixNano(), uuid.NewString(), ext)
}

func contentType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename)))
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	return ct
}

type Nop struct{}

func (Nop) Upload(context.Context, string, *multipart.FileHeader) (Object, error) {
	return Object{}, ErrStorageDisabled
}

func (Nop) Delete(context.Context, []string) error { return nil }

func (Nop) ObjectName(string) (string, error) { return "", ErrNotOurURL }
