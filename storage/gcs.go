package storage

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type GCS struct {
	client *gcs.Client
	bucket string
}

// NewGCS builds a client from a service account file, or from application
// default credentials when credentialsFile is empty.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("missing GCS bucket")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) Upload(ctx context.Context, prefix string, fh *multipart.FileHeader) (Object, error) {
	name := objectName(prefix, fh.Filename)
	ct := contentType(fh)

	f, err := fh.Open()
	if err != nil {
		return Object{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	// Only create when absent so a name collision never overwrites an image.
	w := g.client.Bucket(g.bucket).Object(name).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = ct

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return Object{}, fmt.Errorf("upload copy: %w", err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("upload close: %w", err)
	}

	return Object{
		Name:        name,
		PublicURL:   fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, name),
		ContentType: ct,
		Size:        fh.Size,
	}, nil
}

func (g *GCS) Delete(ctx context.Context, names []string) error {
	var firstErr error
	for _, obj := range names {
		if obj == "" {
			continue
		}
		err := g.client.Bucket(g.bucket).Object(obj).Delete(ctx)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete %s: %w", obj, err)
		}
	}
	return firstErr
}

func (g *GCS) ObjectName(raw string) (string, error) {
	return gcsObjectName(g.bucket, raw)
}

func gcsObjectName(bucket, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	host := strings.ToLower(u.Host)
	path := strings.TrimPrefix(u.Path, "/")

	// storage.googleapis.com/<bucket>/<object>
	if host == "storage.googleapis.com" {
		prefix := bucket + "/"
		if !strings.HasPrefix(path, prefix) || path == prefix {
			return "", ErrNotOurURL
		}
		return strings.TrimPrefix(path, prefix), nil
	}

	// <bucket>.storage.googleapis.com/<object>
	if host == strings.ToLower(bucket)+".storage.googleapis.com" {
		if path == "" {
			return "", fmt.Errorf("missing object path")
		}
		return path, nil
	}

	return "", ErrNotOurURL
}
