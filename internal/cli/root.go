package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buemura/jarhunter/internal/config"
	"github.com/buemura/jarhunter/internal/log"
)

var version = "dev"

var configFlag string

// appConfig holds the loaded configuration, available after PersistentPreRunE.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "jarhunter",
	Short: "jarhunter finds and patches Log4Shell in Java archives",
	Long: `jarhunter walks the filesystem looking for jar, war, ear, aar, rar and nar
files (and optionally zip), including archives nested inside archives, and
reports vulnerable log4j 2, log4j 1, logback and commons-text versions.
With --fix it removes the vulnerable classes in place after backing up
every file it touches.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// ExitError carries a process exit code. Err is nil when there is nothing
// to print besides the normal output.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var (
		cfg *config.Config
		err error
	)
	if configFlag != "" {
		cfg, err = config.LoadFromFile(configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	config.ApplyFlags(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.SetLogger(log.NewConsoleLogger(cmd.ErrOrStderr(), log.LevelFor(cfg.Debug, cfg.Trace, cfg.Silent)))
	appConfig = cfg
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.jarhunter.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "print debug messages")
	rootCmd.PersistentFlags().Bool("trace", false, "print every visited path")
	rootCmd.PersistentFlags().Bool("silent", false, "print only detections and errors")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
