package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the full configuration surface for the daemon.
type Config struct {
	Paths PathsConfig `mapstructure:"paths"`

	NThreads           int  `mapstructure:"nthreads"`
	NThreadsPerProject int  `mapstructure:"nthreads_per_project"`
	ReadOnly           bool `mapstructure:"readonly"`

	MinAgeSeconds int `mapstructure:"min_age"`
	MaxAgeSeconds int `mapstructure:"max_age"`

	Analysis AnalysisConfig `mapstructure:"analysis"`

	SaveReport SaveReportConfig `mapstructure:"save_report"`

	Process ProcessConfig `mapstructure:"process"`

	Box    BoxConfig                 `mapstructure:"box"`
	Mailer MailerConfig              `mapstructure:"mailer"`
	Tasks  map[string]map[string]any `mapstructure:"tasks"`

	// ImplicitTasksPath is a subdirectory (relative to each project's
	// processing directory) under which tasks pulled in via dependency
	// or defaults, rather than requested in the experiment metadata,
	// place their outputs.
	ImplicitTasksPath string `mapstructure:"implicit_tasks_path"`

	// TasksPath names a directory of JSON task-descriptor manifests
	// loaded into the registry at startup alongside the built-in table.
	TasksPath string `mapstructure:"tasks_path"`
}

// PathsConfig holds paths.root and the five subpaths resolved relative
// to it.
type PathsConfig struct {
	Root        string `mapstructure:"root"`
	Runs        string `mapstructure:"runs"`
	Experiments string `mapstructure:"experiments"`
	Status      string `mapstructure:"status"`
	Processed   string `mapstructure:"processed"`
	Packaged    string `mapstructure:"packaged"`
}

// AnalysisConfig holds completion-detection tuning knobs.
type AnalysisConfig struct {
	// GraceWindowSeconds overrides the default 30-minute Analysis
	// completion grace window. 0 keeps the built-in default.
	GraceWindowSeconds int `mapstructure:"grace_window_seconds"`
}

// SaveReportConfig controls the periodic CSV report.
type SaveReportConfig struct {
	Path     string `mapstructure:"path"`
	MaxWidth int    `mapstructure:"max_width"`
}

// ProcessConfig controls the coordinator's refresh cadence.
type ProcessConfig struct {
	PollSeconds int `mapstructure:"poll"`
}

// BoxConfig configures the Box uploader collaborator. No Box SDK is
// available, so a configured, non-skip CredentialsPath still resolves
// to the HTTP stand-in uploader (see internal/collab).
type BoxConfig struct {
	CredentialsPath string `mapstructure:"credentials_path"`
	FolderID        string `mapstructure:"folder_id"`
	Skip            bool   `mapstructure:"skip"`
}

// MailerConfig configures the SMTP mailer collaborator.
type MailerConfig struct {
	CredentialsPath string `mapstructure:"credentials_path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Auth            bool   `mapstructure:"auth"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	From            string `mapstructure:"from"`
	Skip            bool   `mapstructure:"skip"`
}

// MinAge and MaxAge expose the configured durations; ctime filtering
// is expressed in the config file as plain seconds.
func (c Config) MinAge() time.Duration { return time.Duration(c.MinAgeSeconds) * time.Second }
func (c Config) MaxAge() time.Duration { return time.Duration(c.MaxAgeSeconds) * time.Second }
func (c Config) Poll() time.Duration   { return time.Duration(c.Process.PollSeconds) * time.Second }
func (c Config) GraceWindow() time.Duration {
	return time.Duration(c.Analysis.GraceWindowSeconds) * time.Second
}

func (c Config) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.Root, p)
}

func (c Config) RunsRoot() string        { return c.resolvePath(c.Paths.Runs) }
func (c Config) ExperimentsRoot() string { return c.resolvePath(c.Paths.Experiments) }
func (c Config) StatusRoot() string      { return c.resolvePath(c.Paths.Status) }
func (c Config) ProcessedRoot() string   { return c.resolvePath(c.Paths.Processed) }
func (c Config) PackagedRoot() string    { return c.resolvePath(c.Paths.Packaged) }

// Load reads the daemon config from path and applies defaults for any
// unset field.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Paths.Root == "" {
		return nil, fmt.Errorf("config %s: paths.root is required", path)
	}
	return &cfg, nil
}

// Watch reloads the config whenever the underlying file changes,
// invoking onChange with the freshly parsed Config. onErr receives any
// parse error from a reload attempt; the previous Config keeps running
// until a reload succeeds.
func Watch(path string, onChange func(*Config), onErr func(error)) error {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("reload config %s: %w", path, err))
			}
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.runs", "runs")
	v.SetDefault("paths.experiments", "experiments")
	v.SetDefault("paths.status", "status")
	v.SetDefault("paths.processed", "processed")
	v.SetDefault("paths.packaged", "packaged")
	v.SetDefault("nthreads", 1)
	v.SetDefault("nthreads_per_project", 1)
	v.SetDefault("readonly", false)
	v.SetDefault("process.poll", 5)
	v.SetDefault("save_report.max_width", 60)
}
