// Package s3 stores documents as JSON objects in an S3-compatible bucket
// (AWS S3 or MinIO). Each document lives at <collection>/<escaped key>.json.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"pantry/internal/docstore/core"
)

const objectSuffix = ".json"

var _ core.Store = (*Store)(nil)

// Store implements core.Store on top of a single bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// Config holds explicit construction parameters (mostly for tests). For prod
// we rely primarily on environment variables.
type Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional; if set enables custom endpoint (e.g. MinIO)
	PathStyle bool
}

// Environment variables:
//   PANTRY_S3_BUCKET=<bucket> (required)
//   PANTRY_S3_REGION=<region> (default us-east-1)
//   PANTRY_S3_ENDPOINT=<url> (optional, for MinIO)
//   PANTRY_S3_PATH_STYLE=true|false (default false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates an S3 document store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// OpenFromEnv constructs an S3 store from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	bucket := os.Getenv("PANTRY_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("PANTRY_S3_BUCKET required for s3 driver")
	}
	cfg := Config{
		Bucket:    bucket,
		Region:    os.Getenv("PANTRY_S3_REGION"),
		Endpoint:  os.Getenv("PANTRY_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("PANTRY_S3_PATH_STYLE"), "true"),
	}
	return New(ctx, cfg)
}

// Driver returns the s3 driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Close is a no-op; the SDK client holds no resources needing release.
func (s *Store) Close() error { return nil }

// List reads every object under the collection prefix.
func (s *Store) List(ctx context.Context, collection string) ([]core.Document, error) {
	prefix := collection + "/"
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix, ContinuationToken: token})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		for _, obj := range out.Contents {
			if key, ok := documentKey(collection, aws.ToString(obj.Key)); ok {
				keys = append(keys, key)
			}
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)
	docs := make([]core.Document, 0, len(keys))
	for _, key := range keys {
		doc, err := s.Get(ctx, collection, key)
		if errors.Is(err, core.ErrNotFound) {
			// deleted between list and read
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Get downloads and decodes the document object.
func (s *Store) Get(ctx context.Context, collection, key string) (core.Document, error) {
	if err := core.ValidateKey(collection, key); err != nil {
		return core.Document{}, err
	}
	objectKey := ObjectKey(collection, key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &objectKey})
	if err != nil {
		if isNotFound(err) {
			return core.Document{}, fmt.Errorf("get %s/%s: %w", collection, key, core.ErrNotFound)
		}
		return core.Document{}, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	defer func() { _ = out.Body.Close() }()
	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return core.Document{}, fmt.Errorf("read %s/%s: %w", collection, key, err)
	}
	fields, err := core.DecodeFields(payload)
	if err != nil {
		return core.Document{}, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return core.Document{Key: key, Fields: fields}, nil
}

// Set overwrites the document object.
func (s *Store) Set(ctx context.Context, collection, key string, fields core.Fields) error {
	if err := core.ValidateKey(collection, key); err != nil {
		return err
	}
	payload, err := core.EncodeFields(fields)
	if err != nil {
		return err
	}
	objectKey := ObjectKey(collection, key)
	contentType := "application/json"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &objectKey,
		Body:        bytes.NewReader(payload),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, key, err)
	}
	return nil
}

// Delete removes the document object. S3 treats missing keys as success.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if err := core.ValidateKey(collection, key); err != nil {
		return err
	}
	objectKey := ObjectKey(collection, key)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &objectKey}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// ObjectKey maps a document address to its object key. The document key is
// path-escaped so names containing "/" stay inside the collection prefix.
func ObjectKey(collection, key string) string {
	return collection + "/" + url.PathEscape(key) + objectSuffix
}

func documentKey(collection, objectKey string) (string, bool) {
	rest, ok := strings.CutPrefix(objectKey, collection+"/")
	if !ok {
		return "", false
	}
	rest, ok = strings.CutSuffix(rest, objectSuffix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	key, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return key, true
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
