package backup

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/edefter-tracker/internal/config"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/storage/minio"
	"github.com/turtacn/edefter-tracker/internal/testutil"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

type fakeCheckpointer struct {
	calls int32
	err   error
}

func (f *fakeCheckpointer) Checkpoint(context.Context) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

type fakeRemote struct {
	uploaded []string
	keep     int
	err      error
}

func (f *fakeRemote) Upload(_ context.Context, p string) (*minio.ObjectInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.uploaded = append(f.uploaded, p)
	return &minio.ObjectInfo{Key: "backups/" + filepath.Base(p), Size: 10}, nil
}

func (f *fakeRemote) Prune(_ context.Context, keep int) ([]string, error) {
	f.keep = keep
	return nil, nil
}

type env struct {
	dir    string
	cfg    Config
	db     *fakeCheckpointer
	logger *testutil.MockLogger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "edefter.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite data"), 0o644))
	require.NoError(t, os.WriteFile(cfgPath, []byte("app:\n  name: test\n"), 0o644))
	return &env{
		dir:    dir,
		cfg:    Config{Dir: filepath.Join(dir, "backups"), Retain: 3, DBPath: dbPath, ConfigPath: cfgPath},
		db:     &fakeCheckpointer{},
		logger: testutil.NewMockLogger(),
	}
}

// steppingClock returns start, start+1s, start+2s, ...
func steppingClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

var backupTime = time.Date(2025, 6, 13, 18, 30, 5, 0, time.Local)

func TestArchiveName_RoundTrip(t *testing.T) {
	name := ArchiveName(backupTime)
	assert.Equal(t, "edefter-backup-20250613-183005.zip", name)

	parsed, ok := ParseArchiveName(name)
	require.True(t, ok)
	assert.True(t, parsed.Equal(backupTime))

	_, ok = ParseArchiveName("notes.zip")
	assert.False(t, ok)
	_, ok = ParseArchiveName("edefter-backup-2025.zip")
	assert.False(t, ok)
}

func TestCreate_ZipsDatabaseAndConfig(t *testing.T) {
	e := newEnv(t)
	s := NewService(e.cfg, e.db, e.logger, WithClock(func() time.Time { return backupTime }))

	info, err := s.Create(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&e.db.calls))
	assert.Equal(t, "edefter-backup-20250613-183005.zip", info.Name)
	assert.Greater(t, info.Size, int64(0))

	zr, err := zip.OpenReader(info.Path)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"config.yaml", "edefter.db"}, names)

	for _, f := range zr.File {
		if f.Name != "edefter.db" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, "sqlite data", string(data))
	}

	_, err = os.Stat(info.Path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestCreate_KeepsNewestN(t *testing.T) {
	e := newEnv(t)
	s := NewService(e.cfg, e.db, e.logger, WithClock(steppingClock(backupTime)))

	var last *Info
	for i := 0; i < 5; i++ {
		info, err := s.Create(context.Background())
		require.NoError(t, err)
		last = info
	}
	assert.Len(t, last.Pruned, 1)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "edefter-backup-20250613-183009.zip", list[0].Name)
	assert.Equal(t, "edefter-backup-20250613-183007.zip", list[2].Name)
}

func TestCreate_MissingConfigIsOptional(t *testing.T) {
	e := newEnv(t)
	e.cfg.ConfigPath = filepath.Join(e.dir, "missing.yaml")
	s := NewService(e.cfg, nil, e.logger, WithClock(func() time.Time { return backupTime }))

	info, err := s.Create(context.Background())
	require.NoError(t, err)

	zr, err := zip.OpenReader(info.Path)
	require.NoError(t, err)
	defer zr.Close()
	assert.Len(t, zr.File, 1)
}

func TestCreate_Errors(t *testing.T) {
	e := newEnv(t)

	e.db.err = errors.New(errors.ErrCodeDatabaseError, "locked")
	_, err := NewService(e.cfg, e.db, e.logger).Create(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeBackupFailed))

	cfg := e.cfg
	cfg.DBPath = filepath.Join(e.dir, "nope.db")
	_, err = NewService(cfg, nil, e.logger).Create(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeBackupFailed))

	list, err := NewService(cfg, nil, e.logger).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	cfg.DBPath = ""
	_, err = NewService(cfg, nil, e.logger).Create(context.Background())
	assert.True(t, errors.IsValidation(err))
}

func TestCreate_MirrorsToRemote(t *testing.T) {
	e := newEnv(t)
	remote := &fakeRemote{}
	s := NewService(e.cfg, e.db, e.logger, WithRemote(remote), WithClock(func() time.Time { return backupTime }))

	info, err := s.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{info.Path}, remote.uploaded)
	assert.Equal(t, "backups/"+info.Name, info.RemoteKey)
	assert.Equal(t, 3, remote.keep)
}

func TestCreate_RemoteFailureKeepsLocalBackup(t *testing.T) {
	e := newEnv(t)
	remote := &fakeRemote{err: errors.New(errors.ErrCodeStorageError, "bucket gone")}
	s := NewService(e.cfg, e.db, e.logger, WithRemote(remote), WithClock(func() time.Time { return backupTime }))

	info, err := s.Create(context.Background())
	require.NoError(t, err)
	assert.Empty(t, info.RemoteKey)
	assert.FileExists(t, info.Path)
	assert.Equal(t, 1, e.logger.Count("error"))
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(e.cfg.Dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.cfg.Dir, "readme.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(e.cfg.Dir, "edefter-backup-20250101-000000.zip"), []byte("x"), 0o644))

	list, err := NewService(e.cfg, nil, nil).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].Size)
}

func TestRunDaily_OneBackupPerDay(t *testing.T) {
	e := newEnv(t)
	at := time.Date(2025, 6, 13, 2, 0, 10, 0, time.UTC)
	s := NewService(e.cfg, e.db, e.logger, WithClock(func() time.Time { return at }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunDaily(ctx, config.ClockTime{Hour: 2}, time.UTC, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&e.db.calls) >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
