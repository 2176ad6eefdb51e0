// Package storage writes export artifacts to a local directory or an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("blob not found")

// BlobStore defines the interface for abstract storage backends.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// IsS3 reports whether target names an S3 location.
func IsS3(target string) bool { return strings.HasPrefix(target, "s3://") }

// Open picks the backend for target: s3://bucket[/prefix] selects S3, anything else is a local directory.
func Open(target string, cfg aws.Config, optFns ...func(*s3.Options)) (BlobStore, error) {
	if !IsS3(target) {
		if target == "" {
			return nil, fmt.Errorf("storage target is empty")
		}
		return NewLocalStore(target), nil
	}
	rest := strings.TrimPrefix(target, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("invalid s3 target %q: missing bucket", target)
	}
	store := NewS3Store(cfg, bucket, optFns...)
	store.Prefix = strings.Trim(prefix, "/")
	return store, nil
}
