package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// S3API is the subset of the S3 client the store uses. *s3.Client
// satisfies it; tests substitute a fake.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store persists snapshots in an S3 bucket.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	store := mirror.NewS3Store(s3.NewFromConfig(cfg), "my-bucket", "tabsync/")
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store creates a new S3-backed snapshot store.
//
// Parameters:
//   - client: AWS S3 client from aws-sdk-go-v2
//   - bucket: S3 bucket name
//   - prefix: Key prefix for snapshots (e.g., "tabsync/mirrors/")
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// key maps an origin and area to an S3 object key.
func (s *S3Store) key(origin string, area storage.Area) string {
	return fmt.Sprintf("%s%s/%s.json", s.prefix, url.QueryEscape(origin), strings.ToLower(area.String()))
}

// Save uploads a snapshot to S3.
func (s *S3Store) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("mirror: marshal snapshot: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(snap.Origin, snap.Area)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"origin":     snap.Origin,
			"area":       snap.Area.String(),
			"updated-at": snap.UpdatedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("mirror: s3 upload failed: %w", err)
	}
	return nil
}

// Load retrieves a snapshot from S3. Returns (nil, nil) if none exists.
func (s *S3Store) Load(ctx context.Context, origin string, area storage.Area) (*Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(origin, area)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("mirror: s3 get failed: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("mirror: s3 read failed: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("mirror: parse snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes a snapshot from S3.
func (s *S3Store) Delete(ctx context.Context, origin string, area storage.Area) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(origin, area)),
	})
	if err != nil {
		return fmt.Errorf("mirror: s3 delete failed: %w", err)
	}
	return nil
}

// Close is a no-op; the S3 client is owned by the caller.
func (s *S3Store) Close() error {
	return nil
}

// Sweep removes snapshots last modified before the cutoff.
func (s *S3Store) Sweep(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var toDelete []string

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("mirror: s3 list failed: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				if obj.Key != nil {
					toDelete = append(toDelete, *obj.Key)
				}
			}
		}
	}

	for _, key := range toDelete {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("mirror: s3 delete failed: %w", err)
		}
	}

	return nil
}
