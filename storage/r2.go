package storage

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type R2Options struct {
	Bucket       string
	AccessKeyID  string
	SecretKey    string
	Endpoint     string // https://<account-id>.r2.cloudflarestorage.com
	PublicDomain string // custom domain or r2.dev url
}

// R2 talks to Cloudflare R2 through its S3 compatible API.
type R2 struct {
	s3     *s3.Client
	bucket string
	domain string
}

func NewR2(ctx context.Context, opts R2Options) (*R2, error) {
	if opts.Bucket == "" || opts.AccessKeyID == "" || opts.SecretKey == "" || opts.Endpoint == "" {
		return nil, fmt.Errorf("missing R2 settings (bucket, access key, secret key, endpoint)")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, ""),
		),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("r2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.Endpoint)
		o.UsePathStyle = true // required for R2
	})

	return &R2{
		s3:     client,
		bucket: opts.Bucket,
		domain: strings.TrimRight(opts.PublicDomain, "/"),
	}, nil
}

func (r *R2) Upload(ctx context.Context, prefix string, fh *multipart.FileHeader) (Object, error) {
	name := objectName(prefix, fh.Filename)
	ct := contentType(fh)

	f, err := fh.Open()
	if err != nil {
		return Object{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	_, err = r.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(name),
		Body:          f,
		ContentType:   aws.String(ct),
		ContentLength: aws.Int64(fh.Size),
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", fh.Filename, err)
	}

	return Object{Name: name, PublicURL: r.publicURL(name), ContentType: ct, Size: fh.Size}, nil
}

func (r *R2) Delete(ctx context.Context, names []string) error {
	var firstErr error
	for _, obj := range names {
		if obj == "" {
			continue
		}
		_, err := r.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(obj),
		})
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete %s: %w", obj, err)
		}
	}
	return firstErr
}

func (r *R2) ObjectName(raw string) (string, error) {
	prefix := r.domain + "/" + r.bucket + "/"
	if r.domain == "" || !strings.HasPrefix(raw, prefix) || raw == prefix {
		return "", ErrNotOurURL
	}
	return strings.TrimPrefix(raw, prefix), nil
}

func (r *R2) publicURL(name string) string {
	return fmt.Sprintf("%s/%s/%s", r.domain, r.bucket, name)
}
