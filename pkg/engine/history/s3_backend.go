package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

// S3API is the subset of the S3 client the backend uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Backend keeps the whole ledger in one JSONL object.
type S3Backend struct {
	Bucket string
	Key    string
	Retain int
	Client S3API

	mu sync.Mutex
}

// NewS3Backend parses s3://bucket/key and builds the client from cfg.
func NewS3Backend(cfg aws.Config, s3URL string, retain int, optFns ...func(*s3.Options)) (*S3Backend, error) {
	bucket, key, err := ParseS3URL(s3URL)
	if err != nil {
		return nil, err
	}
	return &S3Backend{
		Bucket: bucket,
		Key:    key,
		Retain: retain,
		Client: s3.NewFromConfig(cfg, optFns...),
	}, nil
}

func ParseS3URL(s3URL string) (bucket, key string, err error) {
	u, err := url.Parse(s3URL)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: want s3://bucket/key", s3URL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		key = "faultline/spof_history.jsonl"
	}
	return u.Host, key, nil
}

// Append is a read-modify-write; S3 has no append.
func (b *S3Backend) Append(ctx context.Context, s spof.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := b.readAll(ctx)
	if err != nil {
		return err
	}
	existing = append(existing, s)
	if b.Retain > 0 && len(existing) > b.Retain {
		existing = existing[len(existing)-b.Retain:]
	}

	var buf bytes.Buffer
	for _, snap := range existing {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	_, err = b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.Bucket),
		Key:         aws.String(b.Key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", b.Bucket, b.Key, err)
	}
	return nil
}

func (b *S3Backend) Load(ctx context.Context, n int) ([]spof.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	history, err := b.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return tail(history, n), nil
}

// readAll treats a missing object as an empty ledger.
func (b *S3Backend) readAll(ctx context.Context) ([]spof.Snapshot, error) {
	resp, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return []spof.Snapshot{}, nil
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", b.Bucket, b.Key, err)
	}
	defer resp.Body.Close()

	var history []spof.Snapshot
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var s spof.Snapshot
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			continue
		}
		history = append(history, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return history, nil
}
