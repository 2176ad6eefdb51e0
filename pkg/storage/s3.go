package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Store implements BlobStore for AWS S3. Keys are stored under Prefix.
type S3Store struct {
	Client S3API
	Bucket string
	Prefix string
}

func NewS3Store(cfg aws.Config, bucket string, optFns ...func(*s3.Options)) *S3Store {
	return &S3Store{
		Client: s3.NewFromConfig(cfg, optFns...),
		Bucket: bucket,
	}
}

func (s *S3Store) objectKey(key string) string {
	if s.Prefix == "" {
		return key
	}
	return path.Join(s.Prefix, key)
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to s3: %w", err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download from s3: %w", err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// List returns keys relative to Prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.objectKey(prefix)
	if prefix == "" && s.Prefix != "" {
		full = s.Prefix + "/"
	}
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(full),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				k := *obj.Key
				if s.Prefix != "" {
					k = strings.TrimPrefix(k, s.Prefix+"/")
				}
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}
