// Package reliability holds the operational concerns around the durable
// stores: nightly snapshots of every database, integrity verification, local
// rotation, and upload to an S3-compatible bucket.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prism-insight/execution-core/internal/database"
	"github.com/rs/zerolog"
)

const (
	localRetentionDays = 30
	// The newest minRemoteBackups remote backups are never rotated away,
	// regardless of age.
	minRemoteBackups    = 3
	remoteRetentionDays = 90

	archivePrefix = "execution-core-backup-"
	timestampFmt  = "2006-01-02-150405"
)

// ObjectStore is the slice of S3Client the backup service depends on; nil
// disables cloud upload and keeps snapshots local-only.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]StoredObject, error)
	Delete(ctx context.Context, key string) error
}

// StoredObject is one remote backup archive.
type StoredObject struct {
	Key       string
	SizeBytes int64
}

// BackupService snapshots every database nightly via SQLite's VACUUM INTO,
// verifies each snapshot, rotates old local copies, and optionally uploads a
// tar.gz archive of the full set to an object store.
type BackupService struct {
	databases map[string]*database.DB
	backupDir string
	store     ObjectStore
	log       zerolog.Logger
}

// NewBackupService builds a BackupService over databases. store may be nil.
func NewBackupService(databases map[string]*database.DB, backupDir string, store ObjectStore, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		backupDir: backupDir,
		store:     store,
		log:       log.With().Str("component", "backup").Logger(),
	}
}

// BackupMetadata describes one backup archive.
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database file inside a backup archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// NightlyBackup snapshots every database into a dated directory under the
// backup root, verifies each snapshot, uploads the archived set if an object
// store is configured, and rotates old local and remote copies.
func (s *BackupService) NightlyBackup(ctx context.Context) error {
	started := time.Now()
	stamp := started.UTC().Format(timestampFmt)
	snapshotDir := filepath.Join(s.backupDir, "nightly", stamp)
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	metadata := BackupMetadata{
		Timestamp: started.UTC(),
		Databases: make([]DatabaseMetadata, 0, len(s.databases)),
	}

	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(snapshotDir, name+".db")
		if err := s.snapshotDatabase(name, path); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", name, err)
		}
		if err := verifySnapshot(path); err != nil {
			return fmt.Errorf("snapshot of %s failed verification: %w", name, err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s snapshot: %w", name, err)
		}
		checksum, err := fileChecksum(path)
		if err != nil {
			return fmt.Errorf("failed to checksum %s snapshot: %w", name, err)
		}
		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      name,
			Filename:  name + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(snapshotDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if s.store != nil {
		if err := s.uploadSnapshot(ctx, snapshotDir, stamp); err != nil {
			// Local snapshot is intact; the next nightly run retries the
			// upload with a fresh archive.
			s.log.Error().Err(err).Msg("cloud upload failed, local snapshot kept")
		} else if err := s.rotateRemote(ctx); err != nil {
			s.log.Error().Err(err).Msg("remote rotation failed")
		}
	}

	if err := s.rotateLocal(); err != nil {
		s.log.Error().Err(err).Msg("local rotation failed")
	}

	s.log.Info().
		Dur("duration", time.Since(started)).
		Int("databases", len(metadata.Databases)).
		Str("snapshot", snapshotDir).
		Msg("nightly backup completed")
	return nil
}

// snapshotDatabase writes a consistent copy of the named database using
// SQLite's VACUUM INTO, which runs online without blocking writers.
func (s *BackupService) snapshotDatabase(name, destPath string) error {
	db, ok := s.databases[name]
	if !ok {
		return fmt.Errorf("unknown database %q", name)
	}
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("snapshot target already exists: %s", destPath)
	}
	_, err := db.Exec("VACUUM INTO ?", destPath)
	return err
}

// verifySnapshot opens the snapshot read-only and runs an integrity check.
func verifySnapshot(path string) error {
	conn, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned %q", result)
	}
	return nil
}

// uploadSnapshot archives the snapshot directory to tar.gz and uploads it.
func (s *BackupService) uploadSnapshot(ctx context.Context, snapshotDir, stamp string) error {
	archiveName := archivePrefix + stamp + ".tar.gz"
	archivePath := filepath.Join(snapshotDir, archiveName)

	if err := createArchive(archivePath, snapshotDir); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer os.Remove(archivePath)

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if err := s.store.Upload(ctx, archiveName, f); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	s.log.Info().Str("archive", archiveName).Msg("backup uploaded")
	return nil
}

// rotateLocal deletes nightly snapshot directories older than the local
// retention period.
func (s *BackupService) rotateLocal() error {
	nightlyDir := filepath.Join(s.backupDir, "nightly")
	entries, err := os.ReadDir(nightlyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -localRetentionDays)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		stamp, err := time.Parse(timestampFmt, entry.Name())
		if err != nil {
			continue
		}
		if stamp.Before(cutoff) {
			path := filepath.Join(nightlyDir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				s.log.Error().Err(err).Str("path", path).Msg("failed to delete old snapshot")
				continue
			}
			s.log.Info().Str("path", path).Msg("deleted old snapshot")
		}
	}
	return nil
}

// rotateRemote deletes remote archives past the retention period, always
// keeping the newest minRemoteBackups.
func (s *BackupService) rotateRemote(ctx context.Context) error {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return err
	}

	type remote struct {
		key   string
		stamp time.Time
	}
	backups := make([]remote, 0, len(objects))
	for _, obj := range objects {
		stampStr := strings.TrimSuffix(strings.TrimPrefix(obj.Key, archivePrefix), ".tar.gz")
		stamp, err := time.Parse(timestampFmt, stampStr)
		if err != nil {
			continue
		}
		backups = append(backups, remote{key: obj.Key, stamp: stamp})
	}
	if len(backups) <= minRemoteBackups {
		return nil
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].stamp.After(backups[j].stamp) })

	cutoff := time.Now().UTC().AddDate(0, 0, -remoteRetentionDays)
	for i, b := range backups {
		if i < minRemoteBackups || !b.stamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.key); err != nil {
			s.log.Error().Err(err).Str("key", b.key).Msg("failed to delete remote backup")
			continue
		}
		s.log.Info().Str("key", b.key).Msg("deleted remote backup")
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(metadata)
}

// createArchive packs every .db and .json file in sourceDir into a tar.gz
// at archivePath.
func createArchive(archivePath, sourceDir string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".db") && !strings.HasSuffix(name, ".json")) {
			continue
		}
		if err := addFileToArchive(tw, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, path, nameInArchive string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// NightlyBackupJob adapts BackupService to the jobs.Job interface.
type NightlyBackupJob struct {
	service *BackupService
}

// NewNightlyBackupJob wraps service for cron scheduling.
func NewNightlyBackupJob(service *BackupService) *NightlyBackupJob {
	return &NightlyBackupJob{service: service}
}

// Run executes one nightly backup with a generous bound; a stuck upload must
// not wedge the job runner forever.
func (j *NightlyBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	return j.service.NightlyBackup(ctx)
}

// Name identifies the job in runner logs.
func (j *NightlyBackupJob) Name() string {
	return "nightly_backup"
}
