package reliability

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prism-insight/execution-core/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabases(t *testing.T) map[string]*database.DB {
	t.Helper()
	dir := t.TempDir()

	dbs := make(map[string]*database.DB)
	for _, name := range []string{"ledger", "positions"} {
		db, err := database.New(database.Config{
			Path:    filepath.Join(dir, name+".db"),
			Profile: database.ProfileStandard,
			Name:    name,
		})
		require.NoError(t, err)
		require.NoError(t, db.Migrate())
		t.Cleanup(func() { db.Close() })
		dbs[name] = db
	}
	return dbs
}

type fakeObjectStore struct {
	uploads map[string][]byte
	deleted []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(ctx context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeObjectStore) List(ctx context.Context, prefix string) ([]StoredObject, error) {
	var objects []StoredObject
	for key, data := range f.uploads {
		objects = append(objects, StoredObject{Key: key, SizeBytes: int64(len(data))})
	}
	return objects, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	delete(f.uploads, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func TestNightlyBackup_SnapshotsEveryDatabase(t *testing.T) {
	dbs := newTestDatabases(t)
	backupDir := t.TempDir()
	svc := NewBackupService(dbs, backupDir, nil, zerolog.Nop())

	require.NoError(t, svc.NightlyBackup(context.Background()))

	entries, err := os.ReadDir(filepath.Join(backupDir, "nightly"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	snapshotDir := filepath.Join(backupDir, "nightly", entries[0].Name())
	for _, name := range []string{"ledger.db", "positions.db", "backup-metadata.json"} {
		_, err := os.Stat(filepath.Join(snapshotDir, name))
		assert.NoError(t, err, name)
	}
}

func TestNightlyBackup_SnapshotSurvivesIntegrityCheck(t *testing.T) {
	dbs := newTestDatabases(t)
	_, err := dbs["ledger"].Exec(`
		INSERT INTO trade_logs (ticker, market, action, quantity, price, total_amount, timestamp, success, created_at)
		VALUES ('005930', 'KR', 'BUY', 14, 70000, 980000, ?, 1, ?)`,
		time.Now().UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
	require.NoError(t, err)

	backupDir := t.TempDir()
	svc := NewBackupService(dbs, backupDir, nil, zerolog.Nop())
	require.NoError(t, svc.NightlyBackup(context.Background()))

	entries, err := os.ReadDir(filepath.Join(backupDir, "nightly"))
	require.NoError(t, err)
	path := filepath.Join(backupDir, "nightly", entries[0].Name(), "ledger.db")
	assert.NoError(t, verifySnapshot(path))
}

func TestNightlyBackup_UploadsArchiveWhenStoreConfigured(t *testing.T) {
	dbs := newTestDatabases(t)
	store := newFakeObjectStore()
	svc := NewBackupService(dbs, t.TempDir(), store, zerolog.Nop())

	require.NoError(t, svc.NightlyBackup(context.Background()))

	require.Len(t, store.uploads, 1)
	for key, data := range store.uploads {
		assert.Contains(t, key, archivePrefix)
		assert.Contains(t, key, ".tar.gz")
		// gzip magic bytes
		assert.True(t, bytes.HasPrefix(data, []byte{0x1f, 0x8b}))
	}
}

func TestRotateRemote_KeepsMinimumBackups(t *testing.T) {
	dbs := newTestDatabases(t)
	store := newFakeObjectStore()

	old := time.Now().UTC().AddDate(0, 0, -remoteRetentionDays-10)
	for i := 0; i < minRemoteBackups; i++ {
		key := archivePrefix + old.Add(time.Duration(i)*time.Hour).Format(timestampFmt) + ".tar.gz"
		store.uploads[key] = []byte("x")
	}

	svc := NewBackupService(dbs, t.TempDir(), store, zerolog.Nop())
	require.NoError(t, svc.rotateRemote(context.Background()))

	assert.Empty(t, store.deleted)
	assert.Len(t, store.uploads, minRemoteBackups)
}

func TestRotateRemote_DeletesExpiredBeyondMinimum(t *testing.T) {
	dbs := newTestDatabases(t)
	store := newFakeObjectStore()

	now := time.Now().UTC()
	for i := 0; i < minRemoteBackups; i++ {
		key := archivePrefix + now.Add(-time.Duration(i)*time.Hour).Format(timestampFmt) + ".tar.gz"
		store.uploads[key] = []byte("x")
	}
	expiredKey := archivePrefix + now.AddDate(0, 0, -remoteRetentionDays-5).Format(timestampFmt) + ".tar.gz"
	store.uploads[expiredKey] = []byte("x")

	svc := NewBackupService(dbs, t.TempDir(), store, zerolog.Nop())
	require.NoError(t, svc.rotateRemote(context.Background()))

	assert.Equal(t, []string{expiredKey}, store.deleted)
}

func TestSnapshotDatabase_RefusesOverwrite(t *testing.T) {
	dbs := newTestDatabases(t)
	svc := NewBackupService(dbs, t.TempDir(), nil, zerolog.Nop())

	dest := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, svc.snapshotDatabase("ledger", dest))
	err := svc.snapshotDatabase("ledger", dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
