package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pqsync/pqsync/internal/backup"
)

const (
	defaultMaxFiles = 5
	minMaxFiles     = 1
	maxMaxFiles     = 50
)

func defaults() map[string]any {
	journal := ""
	if dir := Dir(); dir != "" {
		journal = filepath.Join(dir, "journal.db")
	}
	logFile := ""
	if dir, err := os.UserCacheDir(); err == nil {
		logFile = filepath.Join(dir, "pqsync", "pqsync.log")
	}

	return map[string]any{
		"backup.enable":     true,
		"backup.location":   string(backup.SameFolder),
		"backup.customPath": "",
		"backup.maxFiles":   defaultMaxFiles,

		"sync.debounceMs":            500,
		"sync.mediumFileThresholdMB": 10,
		"sync.mediumFileDebounceMs":  2000,
		"sync.largeFileThresholdMB":  50,
		"sync.largeFileDebounceMs":   5000,
		"sync.lockRetryMs":           2000,

		"watch.checkExcelWriteable": true,
		"watch.autoWatch":           false,
		"watch.offOnDelete":         true,
		"watch.poll":                false,
		"watch.pollIntervalMs":      1000,
		"watch.extractGuardMs":      2000,

		"syncDelete.alwaysConfirm": true,
		"syncDelete.turnsWatchOff": true,

		"locator.prefix": "customXml/",
		"dashboard.port": 0,
		"journal.path":   journal,

		"log.file":       logFile,
		"log.maxSizeMB":  10,
		"log.maxBackups": 3,
		"log.maxAgeDays": 28,
		"log.compress":   true,
		"log.verbose":    false,
	}
}

// Settings is a validated snapshot of the configuration.
type Settings struct {
	Backup     BackupSettings     `yaml:"backup" toml:"backup"`
	Sync       SyncSettings       `yaml:"sync" toml:"sync"`
	Watch      WatchSettings      `yaml:"watch" toml:"watch"`
	SyncDelete SyncDeleteSettings `yaml:"syncDelete" toml:"syncDelete"`

	LocatorPrefix string `yaml:"locatorPrefix" toml:"locatorPrefix"`
	DashboardPort int    `yaml:"dashboardPort" toml:"dashboardPort"`
	JournalPath   string `yaml:"journalPath" toml:"journalPath"`

	Log LogSettings `yaml:"log" toml:"log"`
}

// BackupSettings controls backups before destructive writes.
type BackupSettings struct {
	Enable   bool          `yaml:"enable" toml:"enable"`
	Policy   backup.Policy `yaml:"policy" toml:"policy"`
	MaxFiles int           `yaml:"maxFiles" toml:"maxFiles"`
}

// SyncSettings controls debounce sizing and lock retries.
type SyncSettings struct {
	Debounce             time.Duration `yaml:"debounce" toml:"debounce"`
	MediumThresholdBytes int64         `yaml:"mediumThresholdBytes" toml:"mediumThresholdBytes"`
	MediumDebounce       time.Duration `yaml:"mediumDebounce" toml:"mediumDebounce"`
	LargeThresholdBytes  int64         `yaml:"largeThresholdBytes" toml:"largeThresholdBytes"`
	LargeDebounce        time.Duration `yaml:"largeDebounce" toml:"largeDebounce"`
	LockRetry            time.Duration `yaml:"lockRetry" toml:"lockRetry"`
}

// WatchSettings controls watchers.
type WatchSettings struct {
	CheckWriteable bool          `yaml:"checkWriteable" toml:"checkWriteable"`
	AutoWatch      bool          `yaml:"autoWatch" toml:"autoWatch"`
	OffOnDelete    bool          `yaml:"offOnDelete" toml:"offOnDelete"`
	Poll           bool          `yaml:"poll" toml:"poll"`
	PollInterval   time.Duration `yaml:"pollInterval" toml:"pollInterval"`
	ExtractGuard   time.Duration `yaml:"extractGuard" toml:"extractGuard"`
}

// SyncDeleteSettings controls the sync-and-delete command.
type SyncDeleteSettings struct {
	AlwaysConfirm bool `yaml:"alwaysConfirm" toml:"alwaysConfirm"`
	TurnsWatchOff bool `yaml:"turnsWatchOff" toml:"turnsWatchOff"`
}

// LogSettings configures the logger.
type LogSettings struct {
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB" toml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays"`
	Compress   bool   `yaml:"compress" toml:"compress"`
	Verbose    bool   `yaml:"verbose" toml:"verbose"`
}

// Settings returns the validated configuration. Out-of-range values are
// replaced by their defaults and a warning is logged.
func (s *Store) Settings() Settings {
	v := s.v

	location, err := backup.ParseLocation(v.GetString("backup.location"))
	if err != nil {
		s.logger.Warn("invalid backup location, using sameFolder", "error", err)
		location = backup.SameFolder
	}

	st := Settings{
		Backup: BackupSettings{
			Enable:   v.GetBool("backup.enable"),
			Policy:   backup.Policy{Location: location, CustomPath: v.GetString("backup.customPath")},
			MaxFiles: s.intInRange("backup.maxFiles", minMaxFiles, maxMaxFiles, defaultMaxFiles),
		},
		Sync: SyncSettings{
			Debounce:             s.millis("sync.debounceMs", 0),
			MediumThresholdBytes: s.megabytes("sync.mediumFileThresholdMB"),
			MediumDebounce:       s.millis("sync.mediumFileDebounceMs", 0),
			LargeThresholdBytes:  s.megabytes("sync.largeFileThresholdMB"),
			LargeDebounce:        s.millis("sync.largeFileDebounceMs", 0),
			LockRetry:            s.millis("sync.lockRetryMs", 1),
		},
		Watch: WatchSettings{
			CheckWriteable: v.GetBool("watch.checkExcelWriteable"),
			AutoWatch:      v.GetBool("watch.autoWatch"),
			OffOnDelete:    v.GetBool("watch.offOnDelete"),
			Poll:           v.GetBool("watch.poll"),
			PollInterval:   s.millis("watch.pollIntervalMs", 1),
			ExtractGuard:   s.millis("watch.extractGuardMs", 0),
		},
		SyncDelete: SyncDeleteSettings{
			AlwaysConfirm: v.GetBool("syncDelete.alwaysConfirm"),
			TurnsWatchOff: v.GetBool("syncDelete.turnsWatchOff"),
		},
		LocatorPrefix: v.GetString("locator.prefix"),
		DashboardPort: s.intInRange("dashboard.port", 0, 65535, 0),
		JournalPath:   v.GetString("journal.path"),
		Log: LogSettings{
			File:       v.GetString("log.file"),
			MaxSizeMB:  s.intInRange("log.maxSizeMB", 1, 1<<20, 10),
			MaxBackups: s.intInRange("log.maxBackups", 0, 1<<20, 3),
			MaxAgeDays: s.intInRange("log.maxAgeDays", 0, 1<<20, 28),
			Compress:   v.GetBool("log.compress"),
			Verbose:    v.GetBool("log.verbose"),
		},
	}

	if st.LocatorPrefix == "" {
		st.LocatorPrefix = "customXml/"
	}
	if st.Sync.LargeThresholdBytes < st.Sync.MediumThresholdBytes {
		s.logger.Warn("large file threshold below medium threshold, using medium",
			"medium_bytes", st.Sync.MediumThresholdBytes, "large_bytes", st.Sync.LargeThresholdBytes)
		st.Sync.LargeThresholdBytes = st.Sync.MediumThresholdBytes
	}
	return st
}

func (s *Store) intInRange(key string, lo, hi, def int) int {
	n := s.v.GetInt(key)
	if n < lo || n > hi {
		s.logger.Warn("configuration value out of range, using default",
			"key", key, "value", n, "min", lo, "max", hi, "default", def)
		return def
	}
	return n
}

func (s *Store) millis(key string, floor int) time.Duration {
	n := s.v.GetInt(key)
	if n < floor {
		def := defaults()[key].(int)
		s.logger.Warn("configuration value out of range, using default", "key", key, "value", n, "default", def)
		n = def
	}
	return time.Duration(n) * time.Millisecond
}

func (s *Store) megabytes(key string) int64 {
	n := s.v.GetInt(key)
	if n < 1 {
		def := defaults()[key].(int)
		s.logger.Warn("configuration value out of range, using default", "key", key, "value", n, "default", def)
		n = def
	}
	return int64(n) << 20
}
