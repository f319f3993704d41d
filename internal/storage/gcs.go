package storage

import (
	"context"
	"errors"
	"time"

	gcs "cloud.google.com/go/storage"
)

type GCSSigner struct {
	client *gcs.Client
	bucket string
}

func NewGCSSigner(ctx context.Context, bucket string) (*GCSSigner, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSSigner{client: c, bucket: bucket}, nil
}

func (s *GCSSigner) Close() error { return s.client.Close() }

func (s *GCSSigner) SignedGetURL(_ context.Context, objectName string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return s.client.Bucket(s.bucket).SignedURL(objectName, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
}
