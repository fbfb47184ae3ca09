// Package backup takes point-in-time copies of the metadata files and keeps
// the most recent few.
//
// Snapshots live in metadata/backups/<timestamp>/ and contain the per-kind
// metadata files exactly as they were on disk. Folder names sort
// chronologically, so rotation removes the lexically smallest first.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/assetvault/assetvault/internal/logger"
	"github.com/assetvault/assetvault/pkg/asset"
	"github.com/assetvault/assetvault/pkg/fsguard"
	"github.com/assetvault/assetvault/pkg/metrics"
	"github.com/assetvault/assetvault/pkg/vaulterr"
)

const (
	// DirName is the snapshot directory under the metadata directory.
	DirName = "backups"

	// DefaultKeep is the number of snapshots kept by rotation.
	DefaultKeep = 10

	// TimestampFormat names snapshot folders. It sorts chronologically and
	// contains no characters that are invalid in file names.
	TimestampFormat = "2006-01-02_15-04-05.000"
)

// Uploader copies a finished snapshot somewhere off the machine.
type Uploader interface {
	// Upload sends every file of snapshotDir and returns the bytes sent.
	Upload(ctx context.Context, snapshotDir string) (int64, error)
}

// Config configures a Manager. Zero values are valid.
type Config struct {
	// Keep is the number of snapshots retained (default: DefaultKeep)
	Keep int

	// SkipUnchanged skips a snapshot whose content equals the latest one
	SkipUnchanged bool

	// Files lists the metadata file names to copy (default: every kind's file)
	Files []string

	// Mirror receives each new snapshot (optional)
	Mirror Uploader

	// Log receives backup diagnostics (default: logger.Nop())
	Log *logger.Logger

	// Metrics records snapshot outcomes (default: no-op)
	Metrics metrics.BackupMetrics

	// Now returns the snapshot time (default: time.Now)
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Keep <= 0 {
		c.Keep = DefaultKeep
	}
	if len(c.Files) == 0 {
		for _, k := range asset.Kinds {
			c.Files = append(c.Files, k.FileName())
		}
	}
	if c.Log == nil {
		c.Log = logger.Nop()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNoopBackupMetrics()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Result describes one Snapshot call.
type Result struct {
	// Path is the new snapshot folder; empty when Skipped.
	Path string

	// Skipped is true when nothing was written.
	Skipped bool

	// Pruned lists snapshot folders removed by rotation.
	Pruned []string
}

// Manager snapshots and rotates the metadata files of one data directory.
//
// Thread Safety:
// Snapshot and Prune are serialized by an internal mutex.
type Manager struct {
	mu          sync.Mutex
	metadataDir string
	dir         string
	cfg         Config
}

// New creates a Manager for the metadata files in metadataDir.
func New(metadataDir string, cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{
		metadataDir: metadataDir,
		dir:         filepath.Join(metadataDir, DirName),
		cfg:         cfg,
	}
}

// Dir returns the folder holding the snapshots.
func (m *Manager) Dir() string { return m.dir }

// Snapshot copies the current metadata files into a new timestamped folder
// and prunes folders beyond the retention limit.
//
// Nothing is written when no metadata file exists yet, or when SkipUnchanged
// is set and the files match the latest snapshot byte for byte. A snapshot
// that fails half-way is removed. Mirror failures are logged and do not fail
// the snapshot.
//
// Context Cancellation:
// Checked before starting and between files.
func (m *Manager) Snapshot(ctx context.Context) (result Result, err error) {
	start := time.Now()
	defer func() {
		m.cfg.Metrics.RecordSnapshot(time.Since(start), result.Skipped, err)
	}()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// ========================================================================
	// Step 1: Find the files worth copying
	// ========================================================================

	present, err := m.presentFiles()
	if err != nil {
		return Result{}, err
	}
	if len(present) == 0 {
		m.cfg.Log.Debug("No metadata files in %s, skipping snapshot", m.metadataDir)
		return Result{Skipped: true}, nil
	}

	// ========================================================================
	// Step 2: Skip if identical to the latest snapshot
	// ========================================================================

	if m.cfg.SkipUnchanged {
		unchanged, err := m.matchesLatest()
		if err != nil {
			return Result{}, err
		}
		if unchanged {
			m.cfg.Log.Debug("Metadata unchanged since latest snapshot, skipping")
			return Result{Skipped: true}, nil
		}
	}

	// ========================================================================
	// Step 3: Copy into a fresh folder
	// ========================================================================

	path, err := m.newFolder()
	if err != nil {
		return Result{}, err
	}
	scratch, err := fsguard.NewScratch(m.dir, path)
	if err != nil {
		return Result{}, err
	}
	defer scratch.Close()

	for _, name := range present {
		if err := fsguard.CopyFile(ctx,
			m.metadataDir, filepath.Join(m.metadataDir, name),
			m.dir, filepath.Join(path, name)); err != nil {
			return Result{}, fmt.Errorf("failed to back up %s: %w", name, err)
		}
	}
	scratch.Done()
	m.cfg.Log.Info("Created metadata snapshot %s", filepath.Base(path))

	// ========================================================================
	// Step 4: Rotate and mirror
	// ========================================================================

	pruned, err := m.prune()
	if err != nil {
		return Result{Path: path}, err
	}

	if m.cfg.Mirror != nil {
		if n, err := m.cfg.Mirror.Upload(ctx, path); err != nil {
			m.cfg.Log.Warn("Failed to mirror snapshot %s: %v", filepath.Base(path), err)
		} else {
			m.cfg.Log.Debug("Mirrored snapshot %s (%d bytes)", filepath.Base(path), n)
		}
	}

	return Result{Path: path, Pruned: pruned}, nil
}

// List returns the snapshot folders, oldest first.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, vaulterr.IO("list backups", m.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && isSnapshotName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(m.dir, name)
	}
	return paths, nil
}

// Prune removes the oldest snapshots beyond the retention limit.
func (m *Manager) Prune() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prune()
}

func (m *Manager) prune() ([]string, error) {
	paths, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(paths) <= m.cfg.Keep {
		return nil, nil
	}

	excess := paths[:len(paths)-m.cfg.Keep]
	var removed []string
	for _, path := range excess {
		if err := fsguard.RemoveAll(m.dir, path); err != nil {
			m.cfg.Metrics.RecordPruned(len(removed))
			return removed, fmt.Errorf("failed to prune snapshot: %w", err)
		}
		removed = append(removed, path)
	}
	m.cfg.Metrics.RecordPruned(len(removed))
	m.cfg.Log.Debug("Pruned %d snapshots", len(removed))
	return removed, nil
}

func (m *Manager) presentFiles() ([]string, error) {
	var present []string
	for _, name := range m.cfg.Files {
		info, err := os.Stat(filepath.Join(m.metadataDir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, vaulterr.IO("stat", filepath.Join(m.metadataDir, name), err)
		}
		if info.Mode().IsRegular() {
			present = append(present, name)
		}
	}
	return present, nil
}

func (m *Manager) matchesLatest() (bool, error) {
	paths, err := m.List()
	if err != nil || len(paths) == 0 {
		return false, err
	}
	current, err := digest(m.metadataDir, m.cfg.Files)
	if err != nil {
		return false, err
	}
	latest, err := digest(paths[len(paths)-1], m.cfg.Files)
	if err != nil {
		return false, err
	}
	return current == latest, nil
}

// maxSameInstant bounds the snapshots taken within one millisecond.
const maxSameInstant = 999

// newFolder picks an unused snapshot folder name for the current time.
// Snapshots taken within the same millisecond get a zero-padded suffix so
// folder names keep sorting chronologically.
func (m *Manager) newFolder() (string, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", vaulterr.IO("mkdir", m.dir, err)
	}
	base := m.cfg.Now().Format(TimestampFormat)
	name := base
	for i := 1; i <= maxSameInstant+1; i++ {
		path := filepath.Join(m.dir, name)
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", vaulterr.IO("stat", path, err)
		}
		name = fmt.Sprintf("%s_%03d", base, i)
	}
	return "", vaulterr.Conflictf("snapshot", filepath.Join(m.dir, base),
		"more than %d snapshots within one millisecond", maxSameInstant)
}

func isSnapshotName(name string) bool {
	if len(name) < len(TimestampFormat) {
		return false
	}
	_, err := time.Parse(TimestampFormat, name[:len(TimestampFormat)])
	return err == nil
}

// digest hashes the named files of dir. Missing files hash differently from
// empty ones.
func digest(dir string, files []string) (uint64, error) {
	h := xxhash.New()
	for _, name := range files {
		_, _ = h.WriteString(name)

		f, err := os.Open(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			_, _ = h.Write([]byte{0})
			continue
		}
		if err != nil {
			return 0, vaulterr.IO("open", filepath.Join(dir, name), err)
		}
		_, _ = h.Write([]byte{1})
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return 0, vaulterr.IO("read", filepath.Join(dir, name), err)
		}
	}
	return h.Sum64(), nil
}
