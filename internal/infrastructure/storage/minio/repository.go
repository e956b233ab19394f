package minio

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

const archiveContentType = "application/zip"

// ObjectInfo describes one stored backup archive.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

// BackupStore uploads, lists and prunes backup archives under the
// configured prefix.
type BackupStore struct {
	client *MinIOClient
	logger logging.Logger
}

func NewBackupStore(client *MinIOClient, log logging.Logger) *BackupStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &BackupStore{client: client, logger: log}
}

func (s *BackupStore) objectKey(name string) string {
	prefix := strings.Trim(s.client.config.Prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Upload stores the local file under prefix/<base name>.
func (s *BackupStore) Upload(ctx context.Context, localPath string) (*ObjectInfo, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to open backup archive").WithDetail(localPath)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat backup archive").WithDetail(localPath)
	}

	key := s.objectKey(filepath.Base(localPath))
	info, err := s.client.client.PutObject(ctx, s.client.Bucket(), key, f, st.Size(), minio.PutObjectOptions{
		ContentType:  archiveContentType,
		UserMetadata: map[string]string{"source": "edefter-backup"},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "backup upload failed").WithDetail(key)
	}

	s.logger.Info("backup uploaded",
		logging.String("bucket", s.client.Bucket()),
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return &ObjectInfo{Key: key, Size: info.Size, ETag: info.ETag, LastModified: time.Now().UTC()}, nil
}

// List returns the stored archives, newest first.
func (s *BackupStore) List(ctx context.Context) ([]ObjectInfo, error) {
	prefix := strings.Trim(s.client.config.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	var out []ObjectInfo
	for obj := range s.client.client.ListObjects(ctx, s.client.Bucket(), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "failed to list backups")
		}
		if !strings.HasSuffix(obj.Key, ".zip") {
			continue
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, ETag: obj.ETag, LastModified: obj.LastModified})
	}
	// Archive names embed a sortable timestamp.
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, nil
}

// Prune keeps the newest keep archives and removes the rest.  It returns
// the removed keys.
func (s *BackupStore) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	objects, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(objects) <= keep {
		return nil, nil
	}
	var removed []string
	for _, obj := range objects[keep:] {
		if err := s.client.client.RemoveObject(ctx, s.client.Bucket(), obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return removed, errors.Wrap(err, errors.ErrCodeStorageError, "failed to remove old backup").WithDetail(obj.Key)
		}
		removed = append(removed, obj.Key)
	}
	s.logger.Info("old remote backups pruned", logging.Int("removed", len(removed)))
	return removed, nil
}

// Exists reports whether an archive with the given base name is stored.
func (s *BackupStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.client.StatObject(ctx, s.client.Bucket(), s.objectKey(name), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat backup").WithDetail(name)
}
