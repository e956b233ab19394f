// Package backup writes ZIP snapshots of the tracker's data file and
// configuration, keeps the newest few locally and optionally mirrors them
// to an S3-compatible bucket.
package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/edefter-tracker/internal/config"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/storage/minio"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

const (
	filePrefix = "edefter-backup-"
	fileExt    = ".zip"
	timeLayout = "20060102-150405"

	targetLocal  = "local"
	targetRemote = "remote"
)

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Checkpointer flushes the database write-ahead log so the main file is
// self-contained.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// RemoteStore mirrors archives off-host.
type RemoteStore interface {
	Upload(ctx context.Context, localPath string) (*minio.ObjectInfo, error)
	Prune(ctx context.Context, keep int) ([]string, error)
}

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// Config holds backup settings.
type Config struct {
	Dir        string
	Retain     int
	DBPath     string
	ConfigPath string // optional
}

// Info describes one backup archive.
type Info struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	RemoteKey string    `json:"remote_key,omitempty"`
	Pruned    []string  `json:"pruned,omitempty"`
}

// ArchiveName returns the file name of a backup taken at t.
func ArchiveName(t time.Time) string {
	return filePrefix + t.Format(timeLayout) + fileExt
}

// ParseArchiveName returns the creation time encoded in name.
func ParseArchiveName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	t, err := time.ParseInLocation(timeLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

type Option func(*Service)

func WithRemote(r RemoteStore) Option {
	return func(s *Service) { s.remote = r }
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service creates and lists backups.
type Service struct {
	cfg     Config
	db      Checkpointer
	remote  RemoteStore
	metrics *prometheus.AppMetrics
	logger  logging.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewService returns a backup service.  db may be nil when the data file is
// not open in this process.
func NewService(cfg Config, db Checkpointer, logger logging.Logger, opts ...Option) *Service {
	if cfg.Retain < 1 {
		cfg.Retain = config.DefaultBackupRetain
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Service{cfg: cfg, db: db, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create writes a new archive and prunes old ones.  A failed remote upload
// is logged; the local archive still counts as a successful backup.
func (s *Service) Create(ctx context.Context) (info *Info, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		var size int64
		if info != nil {
			size = info.Size
		}
		prometheus.RecordBackup(s.metrics, targetLocal, size, time.Since(start), err)
	}()

	if s.cfg.DBPath == "" {
		return nil, errors.New(errors.ErrCodeValidation, "database path is not configured")
	}
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to create backup directory").WithDetail(s.cfg.Dir)
	}
	if s.db != nil {
		if err := s.db.Checkpoint(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeBackupFailed, "database checkpoint failed")
		}
	}

	created := s.now()
	name := ArchiveName(created)
	path := filepath.Join(s.cfg.Dir, name)

	files := []string{s.cfg.DBPath}
	if s.cfg.ConfigPath != "" {
		if _, statErr := os.Stat(s.cfg.ConfigPath); statErr == nil {
			files = append(files, s.cfg.ConfigPath)
		}
	}
	if err := writeArchive(ctx, path, files); err != nil {
		return nil, err
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBackupFailed, "backup archive missing after write").WithDetail(path)
	}
	info = &Info{Name: name, Path: path, Size: st.Size(), CreatedAt: created}

	pruned, err := s.prune()
	if err != nil {
		s.logger.Warn("failed to prune old backups", logging.Err(err))
	}
	info.Pruned = pruned

	if s.remote != nil {
		s.mirror(ctx, info)
	}

	s.logger.Info("backup created",
		logging.String("path", path),
		logging.Int64("size", info.Size),
		logging.Int("pruned", len(pruned)))
	return info, nil
}

func (s *Service) mirror(ctx context.Context, info *Info) {
	start := time.Now()
	obj, err := s.remote.Upload(ctx, info.Path)
	if err != nil {
		prometheus.RecordBackup(s.metrics, targetRemote, 0, time.Since(start), err)
		s.logger.Error("backup upload failed", logging.String("name", info.Name), logging.Err(err))
		return
	}
	prometheus.RecordBackup(s.metrics, targetRemote, obj.Size, time.Since(start), nil)
	info.RemoteKey = obj.Key
	if removed, err := s.remote.Prune(ctx, s.cfg.Retain); err != nil {
		s.logger.Warn("failed to prune remote backups", logging.Err(err))
	} else if len(removed) > 0 {
		s.logger.Info("remote backups pruned", logging.Int("count", len(removed)))
	}
}

// List returns the local archives, newest first.
func (s *Service) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to read backup directory").WithDetail(s.cfg.Dir)
	}
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := ParseArchiveName(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{
			Name:      e.Name(),
			Path:      filepath.Join(s.cfg.Dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: created,
		})
	}
	// The timestamp layout sorts lexically.
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

func (s *Service) prune() ([]string, error) {
	all, err := s.List(context.Background())
	if err != nil {
		return nil, err
	}
	if len(all) <= s.cfg.Retain {
		return nil, nil
	}
	var removed []string
	for _, old := range all[s.cfg.Retain:] {
		if err := os.Remove(old.Path); err != nil && !os.IsNotExist(err) {
			return removed, errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to remove old backup").WithDetail(old.Path)
		}
		removed = append(removed, old.Name)
	}
	return removed, nil
}

// writeArchive zips files flat into path.  The archive is written to a
// temporary name first so a partial file never looks like a backup.
func writeArchive(ctx context.Context, path string, files []string) (err error) {
	tmp := path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to create archive").WithDetail(tmp)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	zw := zip.NewWriter(out)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(zw, f); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to finish archive")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to close archive")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to finalize archive")
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to open file for backup").WithDetail(path)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to stat file for backup").WithDetail(path)
	}
	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to build zip header").WithDetail(path)
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to add zip entry").WithDetail(path)
	}
	if _, err := io.Copy(w, in); err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "failed to copy file into archive").WithDetail(path)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Daily job
// ---------------------------------------------------------------------------

// RunDaily creates one backup per day at the given local time until ctx is
// cancelled.  tick is the clock polling interval.
func (s *Service) RunDaily(ctx context.Context, at config.ClockTime, loc *time.Location, tick time.Duration) error {
	if loc == nil {
		loc = time.Local
	}
	if tick <= 0 {
		tick = time.Minute
	}
	s.logger.Info("daily backup scheduled", logging.String("at", at.String()))

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	lastDay := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := s.now().In(loc)
			day := now.Format("2006-01-02")
			if !at.Matches(now) || day == lastDay {
				continue
			}
			lastDay = day
			if _, err := s.Create(ctx); err != nil {
				s.logger.Error("daily backup failed", logging.Err(err))
			}
		}
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%d bytes)", i.Name, i.Size)
}
