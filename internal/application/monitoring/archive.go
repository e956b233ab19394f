// Package monitoring keeps upload records in sync with the GIB berat
// archives found under the archive root, by full scans and by watching the
// tree for changes.
package monitoring

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/domain/upload"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// Scan triggers, used as metric labels.
const (
	TriggerManual = "manual"
	TriggerWatch  = "watch"
)

const defaultDebounce = 2 * time.Second

// ScanResult reports one scan.
type ScanResult struct {
	Root           string        `json:"root"`
	FilesSeen      int           `json:"files_seen"`
	Archives       int           `json:"archives"`
	Invalid        int           `json:"invalid"`
	RecordsTouched int           `json:"records_touched"`
	Duration       time.Duration `json:"duration"`
}

// Option customizes a Monitor.
type Option func(*Monitor)

func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.debounce = d
		}
	}
}

func WithMetrics(metrics *prometheus.AppMetrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithOnChange registers a callback run after any scan that touched records.
func WithOnChange(fn func(ctx context.Context, touched int)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// Monitor scans and watches the archive root.
type Monitor struct {
	uploads  upload.Repository
	logger   logging.Logger
	metrics  *prometheus.AppMetrics
	debounce time.Duration
	now      func() time.Time
	onChange func(ctx context.Context, touched int)

	// mu serializes scans so a manual scan and a watch rescan never merge
	// into the same record concurrently.
	mu sync.Mutex
}

func NewMonitor(uploads upload.Repository, logger logging.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	m := &Monitor{
		uploads:  uploads,
		logger:   logger,
		debounce: defaultDebounce,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scan walks root and merges every archive into its upload record.
func (m *Monitor) Scan(ctx context.Context, root string) (*ScanResult, error) {
	return m.scan(ctx, root, []string{root}, TriggerManual)
}

func (m *Monitor) scan(ctx context.Context, root string, paths []string, trigger string) (res *ScanResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	res = &ScanResult{Root: root}
	defer func() {
		res.Duration = time.Since(start)
		prometheus.RecordScan(m.metrics, trigger, res.RecordsTouched, res.Duration, err)
	}()

	if root == "" {
		return res, errors.New(errors.ErrCodeValidation, "archive root is not configured")
	}
	if st, statErr := os.Stat(root); statErr != nil || !st.IsDir() {
		return res, errors.New(errors.ErrCodeUploadArchiveScanFail, "archive root is not a directory").WithDetail(root)
	}

	var archives []upload.Archive
	for _, p := range paths {
		found, walkErr := m.collect(ctx, p, res)
		if walkErr != nil {
			return res, walkErr
		}
		archives = append(archives, found...)
	}
	res.Archives = len(archives)

	touched, err := m.merge(ctx, archives)
	res.RecordsTouched = touched
	if err != nil {
		return res, err
	}

	m.logger.Info("archive scan complete",
		logging.String("root", root),
		logging.String("trigger", trigger),
		logging.Int("files", res.FilesSeen),
		logging.Int("archives", res.Archives),
		logging.Int("touched", res.RecordsTouched))

	if touched > 0 && m.onChange != nil {
		m.onChange(ctx, touched)
	}
	return res, nil
}

// collect returns the archives at or below p.  Vanished paths are ignored;
// a watch event may refer to a file that was renamed away since.
func (m *Monitor) collect(ctx context.Context, p string, res *ScanResult) ([]upload.Archive, error) {
	var out []upload.Archive
	err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			m.logger.Warn("skipping unreadable path", logging.String("path", path), logging.Err(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		res.FilesSeen++
		a, ok, perr := upload.ParseArchiveName(path)
		if perr != nil {
			res.Invalid++
			m.logger.Warn("ignoring archive with invalid period", logging.String("path", path), logging.Err(perr))
			return nil
		}
		if ok {
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeUploadArchiveScanFail, "archive walk failed").WithDetail(p)
	}
	return out, nil
}

type recordKey struct {
	companyKey string
	period     deadline.Period
}

func (m *Monitor) merge(ctx context.Context, archives []upload.Archive) (int, error) {
	groups := make(map[recordKey][]upload.Archive)
	var order []recordKey
	for _, a := range archives {
		k := recordKey{a.CompanyKey, a.Period}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], a)
	}

	seenAt := m.now().UTC()
	touched := 0
	for _, k := range order {
		rec, err := m.uploads.Find(ctx, k.companyKey, k.period)
		if err != nil {
			if !errors.IsNotFound(err) {
				return touched, err
			}
			rec = upload.NewRecord(groups[k][0])
		}
		changed := false
		for _, a := range groups[k] {
			if rec.Merge(a, seenAt) {
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := m.uploads.Upsert(ctx, rec); err != nil {
			return touched, err
		}
		touched++
		if rec.Complete {
			m.logger.Debug("period complete",
				logging.String("company_key", rec.CompanyKey),
				logging.String("period", rec.Period().String()))
		}
	}
	return touched, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Watch
// ─────────────────────────────────────────────────────────────────────────────

// Watch runs an initial scan of root, then rescans changed paths until ctx
// is cancelled.  New sub-directories are watched as they appear.  Event
// bursts are coalesced for the debounce interval.
func (m *Monitor) Watch(ctx context.Context, root string) error {
	if _, err := m.Scan(ctx, root); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeUploadArchiveScanFail, "failed to create watcher")
	}
	defer w.Close()

	if err := m.addTree(w, root); err != nil {
		return err
	}
	m.logger.Info("watching archive root", logging.String("root", root), logging.Duration("debounce", m.debounce))

	pending := make(map[string]struct{})
	timer := time.NewTimer(m.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					if err := m.addTree(w, ev.Name); err != nil {
						m.logger.Warn("failed to watch new directory", logging.String("path", ev.Name), logging.Err(err))
					}
				}
			}
			if len(pending) == 0 {
				timer.Reset(m.debounce)
			}
			pending[ev.Name] = struct{}{}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("watcher error", logging.Err(err))

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			pending = make(map[string]struct{})
			if _, err := m.scan(ctx, root, paths, TriggerWatch); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Error("rescan failed", logging.Err(err))
			}
		}
	}
}

func (m *Monitor) addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return errors.Wrap(err, errors.ErrCodeUploadArchiveScanFail, "failed to watch directory").WithDetail(path)
		}
		return nil
	})
}
