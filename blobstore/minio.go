//go:generate go run go.uber.org/mock/mockgen -source=minio.go -destination=../mocks/mock_blobstore.go -package=mocks
// Package blobstore uploads message media to object storage and hands back
// presigned URLs, so image bytes never touch the message store.
package blobstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// IBlobStore stores an image sent inline with a message and returns the
// URL readers will fetch it from.
type IBlobStore interface {
	UploadBase64(ctx context.Context, payload string) (string, error)
}

type MinioStore struct {
	client    *minio.Client
	bucket    string
	urlExpiry time.Duration
	log       *slog.Logger
}

// NewMinioStore connects to the object store and makes sure the bucket
// exists before first use.
func NewMinioStore(ctx context.Context, log *slog.Logger, endpoint, accessKey, secretKey, bucket string, useSSL bool, urlExpiry time.Duration) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("bucket create: %w", err)
		}
		log.Info("Bucket created", "bucket", bucket)
	}

	return &MinioStore{client: client, bucket: bucket, urlExpiry: urlExpiry, log: log}, nil
}

// UploadBase64 accepts either a raw base64 string or a browser data URL
// ("data:image/png;base64,...."), sniffs the real content type from the
// bytes, and stores the object under a random key.
func (s *MinioStore) UploadBase64(ctx context.Context, payload string) (string, error) {
	if idx := strings.Index(payload, ";base64,"); idx != -1 {
		payload = payload[idx+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	mtype := mimetype.Detect(raw)
	key := "img/" + uuid.NewString() + mtype.Extension()

	_, err = s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(raw), int64(len(raw)),
		minio.PutObjectOptions{ContentType: mtype.String()})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	url, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	s.log.Debug("Image stored", "key", key, "bytes", len(raw), "type", mtype.String())
	return url.String(), nil
}
