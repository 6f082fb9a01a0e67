// Package coldstore mirrors infrequently-touched file bodies out to S3 (or
// an S3-compatible endpoint) and restores them back to local disk on a
// read-miss. Grounded on the teacher's pkg/store/content/s3.S3ContentStore
// for the client-construction and object-key shape, trimmed to the parts
// this server needs: no multipart upload (bodies are read whole off local
// disk before archival, matching this server's file sizes), no buffered
// deletion queue, no injected cache — just PutObject/GetObject/
// DeleteObject keyed by owner/filename, plus a periodic sweep that asks
// internal/fileops which files have aged past ArchiveAfter.
package coldstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keelfs/keeld/internal/config"
	"github.com/keelfs/keeld/internal/fileops"
	"github.com/keelfs/keeld/internal/logger"
)

// Store is the S3-backed cold storage mirror.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewClient builds an S3 client from cfg's static credentials (or the
// ambient AWS credential chain if AccessKeyID is empty), mirroring the
// teacher's NewS3ClientFromConfig helper.
func NewClient(ctx context.Context, cfg *config.ColdStoreConfig) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("coldstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return client, nil
}

// New wraps an already-constructed S3 client for the given bucket,
// verifying bucket access before returning.
func New(ctx context.Context, client *s3.Client, cfg *config.ColdStoreConfig) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("coldstore: bucket name is required")
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("coldstore: access bucket %q: %w", cfg.Bucket, err)
	}
	return &Store{client: client, bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix}, nil
}

// objectKey mirrors the teacher's path-based key design: the S3 bucket
// structure echoes the owner/filename tree so it can be inspected or
// reconstructed directly.
func (s *Store) objectKey(owner, filename string) string {
	return s.keyPrefix + owner + "/" + filename
}

// Archive uploads data as the cold-storage body for owner/filename.
func (s *Store) Archive(ctx context.Context, owner, filename string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(owner, filename)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("coldstore: put object: %w", err)
	}
	return nil
}

// Restore downloads the cold-storage body for owner/filename.
func (s *Store) Restore(ctx context.Context, owner, filename string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(owner, filename)),
	})
	if err != nil {
		return nil, fmt.Errorf("coldstore: get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("coldstore: read object body: %w", err)
	}
	return data, nil
}

// Delete removes the cold-storage body for owner/filename, if any.
func (s *Store) Delete(ctx context.Context, owner, filename string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(owner, filename)),
	})
	if err != nil {
		return fmt.Errorf("coldstore: delete object: %w", err)
	}
	return nil
}

// Archiver is the subset of internal/fileops.FileOps the sweep loop
// drives: list candidates old enough to archive, then archive each one
// under the file-level lock fileops already holds internally.
type Archiver interface {
	ArchiveEligible(cutoff time.Time) ([]fileops.ArchiveCandidate, error)
	Archive(ctx context.Context, owner, filename string, upload func([]byte) error) error
}

// Sweep runs Archiver.ArchiveEligible every interval and archives each
// candidate older than archiveAfter, until ctx is cancelled.
func (s *Store) Sweep(ctx context.Context, archiver Archiver, interval, archiveAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweep(ctx, archiver, archiveAfter)
		}
	}
}

func (s *Store) runSweep(ctx context.Context, archiver Archiver, archiveAfter time.Duration) {
	cutoff := time.Now().Add(-archiveAfter)
	candidates, err := archiver.ArchiveEligible(cutoff)
	if err != nil {
		logger.Error("coldstore: list archive candidates", logger.Err(err))
		return
	}
	for _, c := range candidates {
		owner, filename := c.Owner, c.Filename
		err := archiver.Archive(ctx, owner, filename, func(data []byte) error {
			return s.Archive(ctx, owner, filename, data)
		})
		if err != nil {
			logger.Error("coldstore: archive file", logger.Err(err), logger.Owner(owner), logger.Filename(filename))
			continue
		}
		logger.Info("archived file to cold storage", "owner", owner, "filename", filename)
	}
}
