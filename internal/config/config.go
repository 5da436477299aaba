// Package config provides configuration loading for jarhunter.
// It supports a layered configuration approach with priority:
// CLI flags > environment variables (JARHUNTER_*) > config file (~/.jarhunter.yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/buemura/jarhunter/internal/archive"
	"github.com/buemura/jarhunter/internal/output"
)

const envPrefix = "JARHUNTER"

// S3Config locates the bucket that receives backup archives.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
}

// Config holds all jarhunter configuration options.
type Config struct {
	Debug  bool `mapstructure:"debug" yaml:"debug"`
	Trace  bool `mapstructure:"trace" yaml:"trace"`
	Silent bool `mapstructure:"silent" yaml:"silent"`

	ScanZip         bool   `mapstructure:"scan_zip" yaml:"scan_zip"`
	ZipCharset      string `mapstructure:"zip_charset" yaml:"zip_charset"`
	ScanLog4j1      bool   `mapstructure:"scan_log4j1" yaml:"scan_log4j1"`
	ScanLogback     bool   `mapstructure:"scan_logback" yaml:"scan_logback"`
	ScanCommonsText bool   `mapstructure:"scan_commons_text" yaml:"scan_commons_text"`
	ReportSafe      bool   `mapstructure:"report_safe" yaml:"report_safe"`

	Fix        bool   `mapstructure:"fix" yaml:"fix"`
	ForceFix   bool   `mapstructure:"force_fix" yaml:"force_fix"`
	BackupPath string `mapstructure:"backup_path" yaml:"backup_path"`

	NoSymlink       bool     `mapstructure:"no_symlink" yaml:"no_symlink"`
	ExcludePaths    []string `mapstructure:"exclude_paths" yaml:"exclude_paths"`
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	ExcludeConfig   string   `mapstructure:"exclude_config" yaml:"exclude_config"`
	ExcludeFS       []string `mapstructure:"exclude_fs" yaml:"exclude_fs"`
	IncludeFile     string   `mapstructure:"include_file" yaml:"include_file"`
	AllDrives       bool     `mapstructure:"all_drives" yaml:"all_drives"`
	Drives          []string `mapstructure:"drives" yaml:"drives"`

	ReportCSV     bool   `mapstructure:"report_csv" yaml:"report_csv"`
	ReportJSON    bool   `mapstructure:"report_json" yaml:"report_json"`
	ReportPath    string `mapstructure:"report_path" yaml:"report_path"`
	ReportDir     string `mapstructure:"report_dir" yaml:"report_dir"`
	NoEmptyReport bool   `mapstructure:"no_empty_report" yaml:"no_empty_report"`

	OldExitCode  bool   `mapstructure:"old_exit_code" yaml:"old_exit_code"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	Concurrency  int    `mapstructure:"concurrency" yaml:"concurrency"`
	Throttle     int    `mapstructure:"throttle" yaml:"throttle"`
	MaxDepth     int    `mapstructure:"max_depth" yaml:"max_depth"`

	DatabaseURL string   `mapstructure:"database_url" yaml:"database_url"`
	S3          S3Config `mapstructure:"s3" yaml:"s3"`
	ListenAddr  string   `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// Defaults returns a Config populated with default values.
func Defaults() Config {
	return Config{
		OutputFormat: "table",
		Concurrency:  runtime.NumCPU(),
		ListenAddr:   ":3000",
	}
}

// Load reads configuration from ~/.jarhunter.yaml and environment variables.
// It does NOT apply CLI flag overrides; call ApplyFlags for that.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName(".jarhunter")
	v.SetConfigType("yaml")

	home, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ApplyFlags overrides config values with any CLI flags that were explicitly set.
func ApplyFlags(cfg *Config, cmd *cobra.Command) {
	flags := cmd.Flags()

	bools := map[string]*bool{
		"debug":             &cfg.Debug,
		"trace":             &cfg.Trace,
		"silent":            &cfg.Silent,
		"scan-zip":          &cfg.ScanZip,
		"scan-log4j1":       &cfg.ScanLog4j1,
		"scan-logback":      &cfg.ScanLogback,
		"scan-commons-text": &cfg.ScanCommonsText,
		"report-safe":       &cfg.ReportSafe,
		"fix":               &cfg.Fix,
		"force-fix":         &cfg.ForceFix,
		"no-symlink":        &cfg.NoSymlink,
		"all-drives":        &cfg.AllDrives,
		"report-csv":        &cfg.ReportCSV,
		"report-json":       &cfg.ReportJSON,
		"no-empty-report":   &cfg.NoEmptyReport,
		"old-exit-code":     &cfg.OldExitCode,
	}
	for name, dst := range bools {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}

	strs := map[string]*string{
		"zip-charset":    &cfg.ZipCharset,
		"backup-path":    &cfg.BackupPath,
		"exclude-config": &cfg.ExcludeConfig,
		"include-file":   &cfg.IncludeFile,
		"report-path":    &cfg.ReportPath,
		"report-dir":     &cfg.ReportDir,
		"output":         &cfg.OutputFormat,
		"database-url":   &cfg.DatabaseURL,
		"addr":           &cfg.ListenAddr,
	}
	for name, dst := range strs {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}

	slices := map[string]*[]string{
		"exclude":         &cfg.ExcludePaths,
		"exclude-pattern": &cfg.ExcludePatterns,
		"exclude-fs":      &cfg.ExcludeFS,
		"drives":          &cfg.Drives,
	}
	for name, dst := range slices {
		if flags.Changed(name) {
			*dst, _ = flags.GetStringSlice(name)
		}
	}

	ints := map[string]*int{
		"concurrency": &cfg.Concurrency,
		"throttle":    &cfg.Throttle,
		"max-depth":   &cfg.MaxDepth,
	}
	for name, dst := range ints {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
}

// Validate fills in implied options and rejects inconsistent ones.
func (c *Config) Validate() error {
	if c.ReportPath != "" && c.ReportDir != "" {
		return errors.New("cannot specify both report_path and report_dir")
	}
	if (c.ReportPath != "" || c.ReportDir != "") && !c.ReportCSV && !c.ReportJSON {
		c.ReportCSV = true
	}
	if c.ForceFix {
		c.Fix = true
	}
	if c.ZipCharset != "" {
		if _, err := archive.LookupCharset(c.ZipCharset); err != nil {
			return err
		}
	}
	if _, err := output.GetFormatter(c.OutputFormat); err != nil {
		return err
	}
	if c.AllDrives && len(c.Drives) > 0 {
		return errors.New("cannot specify both all_drives and drives")
	}
	if c.IncludeFile != "" && (c.AllDrives || len(c.Drives) > 0) {
		return errors.New("cannot specify include_file together with drives")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Throttle < 0 {
		return fmt.Errorf("throttle must not be negative, got %d", c.Throttle)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", c.MaxDepth)
	}
	if c.S3.Bucket != "" && c.S3.Endpoint == "" {
		return errors.New("s3.endpoint is required when s3.bucket is set")
	}
	return nil
}

// ConfigFilePath returns the default config file path (~/.jarhunter.yaml).
func ConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jarhunter.yaml"
	}
	return filepath.Join(home, ".jarhunter.yaml")
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	for _, key := range []string{
		"debug", "trace", "silent",
		"scan_zip", "scan_log4j1", "scan_logback", "scan_commons_text", "report_safe",
		"fix", "force_fix", "no_symlink", "all_drives",
		"report_csv", "report_json", "no_empty_report", "old_exit_code",
		"s3.use_ssl",
	} {
		v.SetDefault(key, false)
	}
	for _, key := range []string{
		"zip_charset", "backup_path", "exclude_config", "include_file",
		"report_path", "report_dir", "database_url",
		"s3.endpoint", "s3.bucket", "s3.access_key", "s3.secret_key", "s3.prefix",
	} {
		v.SetDefault(key, "")
	}
	for _, key := range []string{"exclude_paths", "exclude_patterns", "exclude_fs", "drives"} {
		v.SetDefault(key, []string{})
	}
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("throttle", 0)
	v.SetDefault("max_depth", 0)
	v.SetDefault("listen_addr", d.ListenAddr)
}
