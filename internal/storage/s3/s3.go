// Package s3 stores objects in an Amazon S3 (or S3-compatible) bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sakif/field-survey/internal/storage"
)

var (
	_ storage.BlobStore = (*Store)(nil)
	_ storage.Presigner = (*Store)(nil)
)

// API is the subset of *s3.Client methods used by Store.
type API interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
}

// PresignAPI is the subset of *s3.PresignClient used by Store.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Store struct {
	client  API
	presign PresignAPI
	bucket  string
	prefix  string
}

// Options configure NewFromEnv.
type Options struct {
	Bucket string
	// Prefix is prepended to every key, e.g. "form_images/".
	Prefix string
	// Endpoint overrides the S3 endpoint (MinIO, LocalStack). Enables path-style.
	Endpoint string
}

// New wraps existing clients. Tests pass fakes here.
func New(client API, presign PresignAPI, bucket, prefix string) *Store {
	return &Store{client: client, presign: presign, bucket: bucket, prefix: prefix}
}

// NewFromEnv loads the default AWS credential chain and builds a Store.
func NewFromEnv(ctx context.Context, opts Options) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, awss3.NewPresignClient(client), opts.Bucket, opts.Prefix), nil
}

// Put uploads data. With overwrite=false the request carries If-None-Match: *,
// so S3 itself refuses to replace an existing object.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte, overwrite bool) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	in := &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.prefix + key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if !overwrite {
		in.IfNoneMatch = aws.String("*")
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		if isPreconditionFailed(err) {
			return storage.ErrObjectExists
		}
		return fmt.Errorf("s3: putting %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, storage.ErrObjectNotFound
	}

	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3: getting %s: %w", key, err)
	}

	return &storage.Object{
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		Body:        out.Body,
	}, nil
}

// Delete removes keys in one batch request. S3 treats missing keys as deleted.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ids := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		if err := storage.ValidateKey(k); err != nil {
			return err
		}
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(s.prefix + k)})
	}

	out, err := s.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("s3: deleting %d objects: %w", len(keys), err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return fmt.Errorf("s3: deleting %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
	}
	return nil
}

// PresignGet returns a presigned GET URL valid for ttl.
func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3: presigning %s: %w", key, err)
	}
	return req.URL, nil
}

// isPreconditionFailed matches the errors S3 returns when If-None-Match fails:
// 412 PreconditionFailed, or 409 ConditionalRequestConflict for a racing write.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
