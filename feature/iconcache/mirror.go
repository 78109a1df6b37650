package iconcache

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"trophy-manager/core/storage"
	"trophy-manager/feature/achievements/reconcile"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Source fetches the bytes behind an icon reference (typically a provider
// CDN URL). Kept as a function so tests and providers can supply their own.
type Source func(ctx context.Context, ref string) ([]byte, error)

// Mirror copies achievement icon assets into object storage so display
// layers can serve them without hitting provider CDNs. Uploads are
// idempotent: objects are keyed by the hash of their reference and skipped
// when already present.
type Mirror struct {
	client storage.Client
	bucket string
	source Source
	logger *zap.Logger
}

// New creates a Mirror.
func New(client storage.Client, bucket string, source Source, logger *zap.Logger) *Mirror {
	return &Mirror{
		client: client,
		bucket: bucket,
		source: source,
		logger: logger,
	}
}

// EnsureBucket creates the icon bucket when it does not exist yet.
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check icon bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create icon bucket: %w", err)
	}
	return nil
}

// MirrorDefinitions uploads the icons referenced by a definition set.
// Individual icon failures are logged and skipped; only a bucket-level
// failure is returned.
func (m *Mirror) MirrorDefinitions(ctx context.Context, providerKey string, defs []reconcile.IncomingDefinition) (uploaded int, err error) {
	if err := m.EnsureBucket(ctx); err != nil {
		return 0, err
	}

	for _, def := range defs {
		for _, ref := range []string{def.UnlockedIconRef, def.LockedIconRef} {
			if ref == "" {
				continue
			}
			ok, err := m.mirrorOne(ctx, providerKey, ref)
			if err != nil {
				m.logger.Warn("icon upload failed",
					zap.String("provider", providerKey),
					zap.String("ref", ref),
					zap.Error(err),
				)
				continue
			}
			if ok {
				uploaded++
			}
		}
	}
	return uploaded, nil
}

// mirrorOne uploads a single icon unless it is already mirrored.
// Returns true when an upload happened.
func (m *Mirror) mirrorOne(ctx context.Context, providerKey, ref string) (bool, error) {
	objectName := ObjectName(providerKey, ref)

	if _, err := m.client.StatObject(ctx, m.bucket, objectName, minio.StatObjectOptions{}); err == nil {
		return false, nil
	}

	data, err := m.source(ctx, ref)
	if err != nil {
		return false, err
	}

	_, err = m.client.PutObject(ctx, m.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType(ref)},
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Purge removes every mirrored icon for a provider. Used by cache clear.
func (m *Mirror) Purge(ctx context.Context, providerKey string) error {
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    "icons/" + providerKey + "/",
		Recursive: true,
	})

	for removeErr := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		if removeErr.Err != nil {
			return fmt.Errorf("failed to purge icons: %w", removeErr.Err)
		}
	}
	return nil
}

// ObjectName derives the stable storage key for an icon reference.
func ObjectName(providerKey, ref string) string {
	sum := md5.Sum([]byte(ref))
	return "icons/" + providerKey + "/" + hex.EncodeToString(sum[:]) + extension(ref)
}

func extension(ref string) string {
	if idx := strings.LastIndex(ref, "."); idx >= 0 && len(ref)-idx <= 5 {
		return strings.ToLower(ref[idx:])
	}
	return ".png"
}

func contentType(ref string) string {
	switch extension(ref) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
