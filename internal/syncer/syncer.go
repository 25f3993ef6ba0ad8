package syncer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/pqsync/pqsync/internal/backup"
	"github.com/pqsync/pqsync/internal/clock"
	"github.com/pqsync/pqsync/internal/lock"
	"github.com/pqsync/pqsync/internal/mashup"
	"github.com/pqsync/pqsync/internal/mcode"
	"github.com/pqsync/pqsync/internal/workbook"
)

// Config configures a Syncer. Zero values select the production
// implementations.
type Config struct {
	// Codec decodes DataMashup payloads. Defaults to mashup.Binary.
	Codec mashup.Codec
	// FS defaults to OSFileSystem.
	FS FileSystem
	// Clock stamps headers and backups. Defaults to clock.Real().
	Clock clock.Clock
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Prefix is where DataMashup candidates live. Defaults to
	// workbook.DefaultPrefix.
	Prefix string

	// Backup enables a backup before each write.
	Backup bool
	// BackupPolicy selects the backup directory.
	BackupPolicy backup.Policy
	// KeepBackups is the retention count after each backup. Values below
	// 1 mean DefaultKeepBackups.
	KeepBackups int

	// CheckWriteable enables the lock check before a sync.
	CheckWriteable bool
	// LockCheck defaults to lock.Check.
	LockCheck func(path string) error
}

// DefaultKeepBackups is the retention count used when Config leaves it
// unset.
const DefaultKeepBackups = 5

type fileSyncer struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	hashes map[string]string // .m path -> hash of last extracted or synced body
}

// New creates a Syncer.
//
// Example:
//
//	s := syncer.New(syncer.Config{
//	    Backup:         true,
//	    BackupPolicy:   backup.Policy{Location: backup.SameFolder},
//	    KeepBackups:    5,
//	    CheckWriteable: true,
//	})
//	res, err := s.Sync(ctx, "/data/Sales.xlsx_PowerQuery.m", syncer.SyncOptions{})
func New(cfg Config) Syncer {
	if cfg.Codec == nil {
		cfg.Codec = mashup.Binary{}
	}
	if cfg.FS == nil {
		cfg.FS = OSFileSystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = workbook.DefaultPrefix
	}
	if cfg.LockCheck == nil {
		cfg.LockCheck = lock.Check
	}
	if cfg.KeepBackups < 1 {
		cfg.KeepBackups = DefaultKeepBackups
	}
	return &fileSyncer{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "syncer"),
		hashes: make(map[string]string),
	}
}

// Hash returns the content hash used to detect unchanged formulas.
func Hash(formula string) string {
	sum := blake3.Sum256([]byte(formula))
	return hex.EncodeToString(sum[:])
}

// Resolve implements Syncer.Resolve.
func (s *fileSyncer) Resolve(mPath string) (string, error) {
	wb, err := mcode.WorkbookCandidate(mPath)
	if err != nil {
		return "", &Error{Kind: ErrAssociation, Op: "resolve", Path: mPath, Err: errors.New(mcode.NamingHint(mPath))}
	}
	info, err := s.cfg.FS.Stat(wb)
	if err != nil || info.IsDir() {
		return "", &Error{Kind: ErrAssociation, Op: "resolve", Path: mPath, Err: errors.New(mcode.NamingHint(mPath))}
	}
	return wb, nil
}

// Extract implements Syncer.Extract.
func (s *fileSyncer) Extract(ctx context.Context, workbookPath string) (*ExtractResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, part, handle, err := s.load("extract", workbookPath)
	if err != nil {
		return nil, err
	}

	formula := handle.Formula()
	if formula == "" {
		return nil, newError(ErrCodec, "extract", workbookPath, errors.New("codec returned an empty formula"))
	}

	mPath := mcode.SidecarPath(workbookPath)
	text := mcode.Wrap(formula, mcode.Metadata{
		Workbook:    workbookPath,
		Part:        part.Name,
		ExtractedAt: s.cfg.Clock.Now(),
	})
	if err := s.cfg.FS.WriteFile(mPath, []byte(text), 0o644); err != nil {
		return nil, newError(ErrWrite, "extract", mPath, err)
	}

	_, body := mcode.Strip(text)
	hash := Hash(body)
	s.remember(mPath, hash)

	s.logger.Info("extracted Power Query", "workbook", workbookPath, "part", part.Name, "output", mPath)
	return &ExtractResult{
		Workbook: workbookPath,
		MPath:    mPath,
		Part:     part.Name,
		Formula:  formula,
		Hash:     hash,
	}, nil
}

// Sync implements Syncer.Sync.
func (s *fileSyncer) Sync(ctx context.Context, mPath string, opts SyncOptions) (*SyncResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wb := opts.Workbook
	if wb == "" {
		resolved, err := s.Resolve(mPath)
		if err != nil {
			return nil, err
		}
		wb = resolved
	} else if info, err := s.cfg.FS.Stat(wb); err != nil || info.IsDir() {
		return nil, &Error{Kind: ErrAssociation, Op: "sync", Path: mPath, Err: errors.New(mcode.NamingHint(mPath))}
	}

	raw, err := s.cfg.FS.ReadFile(mPath)
	if err != nil {
		return nil, newError(ErrRead, "sync", mPath, err)
	}
	_, body := mcode.Strip(string(raw))
	if body == "" {
		return nil, newError(ErrEmptyFormula, "sync", mPath, nil)
	}
	if !mcode.HasSection(body) {
		s.logger.Warn("no section declaration found, syncing whole file", "path", mPath)
	}

	hash := Hash(body)
	result := &SyncResult{Workbook: wb, MPath: mPath, Hash: hash}
	if !opts.Force && s.lastHash(mPath) == hash {
		s.logger.Debug("formula unchanged, skipping sync", "path", mPath)
		result.Unchanged = true
		return result, nil
	}

	if s.cfg.CheckWriteable {
		if err := s.cfg.LockCheck(wb); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &Error{Kind: ErrAssociation, Op: "sync", Path: mPath, Err: errors.New(mcode.NamingHint(mPath))}
			}
			return nil, newError(ErrLocked, "sync", wb, err)
		}
	}

	container, part, handle, err := s.load("sync", wb)
	if err != nil {
		return nil, err
	}
	result.Part = part.Name

	handle.SetFormula(body)
	payload, err := handle.Save()
	if err != nil {
		return nil, newError(ErrCodec, "sync", wb, err)
	}
	if payload == "" {
		return nil, newError(ErrCodec, "sync", wb, errors.New("codec returned an empty payload"))
	}

	if err := container.Replace(part.Name, part.Encode(payload)); err != nil {
		return nil, newError(ErrCodec, "sync", wb, err)
	}
	data, err := container.Bytes()
	if err != nil {
		return nil, newError(ErrCodec, "sync", wb, err)
	}

	if s.cfg.Backup {
		rec, err := backup.Create(wb, s.cfg.BackupPolicy, s.cfg.Clock.Now())
		if err != nil {
			return nil, newError(ErrBackup, "sync", wb, err)
		}
		result.Backup = rec.Path
		if _, err := backup.Prune(wb, s.cfg.BackupPolicy, s.cfg.KeepBackups, s.logger); err != nil {
			s.logger.Warn("backup pruning incomplete", "workbook", wb, "error", err)
		}
	}

	perm := fs.FileMode(0o644)
	if info, err := s.cfg.FS.Stat(wb); err == nil {
		perm = info.Mode().Perm()
	}
	if err := s.cfg.FS.WriteFile(wb, data, perm); err != nil {
		return nil, &Error{Kind: ErrWrite, Op: "sync", Path: wb, Backup: result.Backup, Err: err}
	}

	s.remember(mPath, hash)
	result.Bytes = len(data)
	s.logger.Info("synced Power Query", "source", mPath, "workbook", wb, "part", part.Name, "backup", result.Backup)
	return result, nil
}

// SyncAndDelete implements Syncer.SyncAndDelete.
func (s *fileSyncer) SyncAndDelete(ctx context.Context, mPath string, opts SyncOptions) (*SyncResult, error) {
	opts.Force = true
	result, err := s.Sync(ctx, mPath, opts)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.FS.Remove(mPath); err != nil {
		return result, fmt.Errorf("synced but failed to delete %s: %w", mPath, err)
	}
	s.forget(mPath)
	s.logger.Info("deleted .m file after sync", "path", mPath)
	return result, nil
}

// Restore implements Syncer.Restore.
func (s *fileSyncer) Restore(ctx context.Context, workbookPath, backupPath string) (*backup.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *backup.Record
	if backupPath == "" {
		latest, err := backup.Latest(workbookPath, s.cfg.BackupPolicy)
		if err != nil {
			return nil, err
		}
		rec = latest
	} else {
		rec = &backup.Record{Workbook: workbookPath, Path: backupPath, Location: s.cfg.BackupPolicy.Location}
	}

	if err := backup.Restore(rec.Path, workbookPath); err != nil {
		return nil, newError(ErrWrite, "restore", workbookPath, err)
	}
	s.forgetWorkbook(workbookPath)
	s.logger.Info("restored workbook from backup", "workbook", workbookPath, "backup", rec.Path)
	return rec, nil
}

// load reads a workbook and decodes its DataMashup part.
func (s *fileSyncer) load(op, path string) (*workbook.Container, *workbook.Part, mashup.Handle, error) {
	data, err := s.cfg.FS.ReadFile(path)
	if err != nil {
		return nil, nil, nil, newError(ErrRead, op, path, err)
	}
	container, err := workbook.Open(data)
	if err != nil {
		return nil, nil, nil, newError(ErrMalformed, op, path, err)
	}

	part, err := workbook.Locate(container, s.cfg.Prefix)
	if err != nil {
		if errors.Is(err, workbook.ErrMalformed) {
			return nil, nil, nil, newError(ErrMalformed, op, path, err)
		}
		return nil, nil, nil, newError(ErrNotFound, op, path, err)
	}

	handle, err := s.cfg.Codec.Parse(part.Text)
	if err != nil {
		return nil, nil, nil, newError(ErrCodec, op, path, err)
	}
	if handle == nil {
		return nil, nil, nil, newError(ErrCodec, op, path, errors.New("codec returned no handle"))
	}
	return container, part, handle, nil
}

func (s *fileSyncer) remember(mPath, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[mPath] = hash
}

func (s *fileSyncer) forget(mPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, mPath)
}

// forgetWorkbook drops the hash of a workbook's sidecar so the next sync
// after a restore always writes.
func (s *fileSyncer) forgetWorkbook(workbookPath string) {
	s.forget(mcode.SidecarPath(workbookPath))
}

func (s *fileSyncer) lastHash(mPath string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashes[mPath]
}
