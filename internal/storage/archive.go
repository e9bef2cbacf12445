// Package storage archives the final snapshot of each finished session to an
// S3-compatible object store, keyed by session name. This is the write-only
// document-store boundary: nothing in the coordinator ever reads it back.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/carnegiemellonracing/PiDAQ/internal/config"
	"github.com/carnegiemellonracing/PiDAQ/internal/session"
)

type Archive struct {
	mc       *minio.Client
	bucket   string
	basePath string
	logger   *log.Logger
}

// NewArchive builds the archive client, or returns nil when S3_ENDPOINT is
// not configured. All methods are nil-safe.
func NewArchive(cfg *config.Config) (*Archive, error) {
	if cfg.S3Endpoint == "" {
		return nil, nil
	}
	mc, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseTLS,
	})
	if err != nil {
		return nil, err
	}
	return &Archive{
		mc:       mc,
		bucket:   cfg.S3Bucket,
		basePath: cfg.S3BasePath,
		logger:   cfg.Logger,
	}, nil
}

func (a *Archive) EnsureBucket(ctx context.Context) error {
	if a == nil {
		return nil
	}
	exists, err := a.mc.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return a.mc.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// StoreSession uploads the session's snapshot. The snapshot is serialized on
// the caller's goroutine, while the event loop still exclusively owns the
// session; late points folded into the ended session afterwards are free to
// mutate it. Only the upload runs in the background, fire-and-forget:
// failures are logged and the session stays retained in memory regardless.
func (a *Archive) StoreSession(ctx context.Context, sess *session.Session) {
	if a == nil {
		return
	}
	buf, err := json.Marshal(sess)
	if err != nil {
		a.logger.Printf("[archive] marshal session %s failed: %v", sess.ID, err)
		return
	}
	id := sess.ID
	object := buildObjectPath(a.basePath, sess.Name, sess.StartedAt, id+".json")
	go func() {
		_, err := a.mc.PutObject(ctx, a.bucket, object, bytes.NewReader(buf), int64(len(buf)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
		if err != nil {
			a.logger.Printf("[archive] upload of %s failed: %v", object, err)
			return
		}
		a.logger.Printf("[archive] stored session %s as %s (%d bytes)", id, object, len(buf))
	}()
}

func buildObjectPath(basePath, name string, t time.Time, file string) string {
	return fmt.Sprintf("%s/%s/year=%04d/month=%02d/day=%02d/%s",
		basePath, name, t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), file)
}
