// Package cmd provides the CLI commands for exifturbo.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/exif-turbo/exifturbo/internal/config"
	"github.com/exif-turbo/exifturbo/internal/logging"
	"github.com/exif-turbo/exifturbo/internal/profiling"
	"github.com/exif-turbo/exifturbo/pkg/version"
)

// app carries state shared by every subcommand of one invocation. It is
// filled by the root command's PersistentPreRunE.
type app struct {
	dbPath  string
	logFile string
	debug   bool
	profile profiling.Options

	cfg     *config.Config
	logger  *slog.Logger
	session *profiling.Session
	cleanup func()
}

// NewRootCmd creates the root command for exifturbo CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exifturbo",
		Short: "Index photo metadata and search it",
		Long: `exifturbo extracts EXIF, IPTC and XMP metadata from image folders into a
local SQLite index and answers structured full-text queries over it.

  exifturbo index ~/Pictures
  exifturbo search 'make:canon AND lens:"50mm" NOT keywords:draft'
  exifturbo serve --http 127.0.0.1:8080`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}
	cmd.SetVersionTemplate("exifturbo version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "Index file (default from config, ~/.exifturbo/index.db)")
	cmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Log file (default ~/.exifturbo/logs/server.log)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging, mirrored to stderr")
	cmd.PersistentFlags().StringVar(&a.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newIndexCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newShowCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newDoctorCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command. Teardown also runs when the command
// failed, which cobra's post-run hook skips.
func Execute(ctx context.Context) error {
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	if terr := a.teardown(); err == nil {
		err = terr
	}
	return err
}

// setup loads configuration for the working directory, applies global flags
// and starts logging and profiling.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DB = a.dbPath
	}
	a.cfg = cfg

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	if a.debug {
		logCfg = logging.DebugConfig()
	}
	if a.logFile != "" {
		logCfg.FilePath = a.logFile
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.logger, a.cleanup = logger, cleanup
	slog.SetDefault(logger)
	logger.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("db", cfg.DB),
		slog.String("version", version.Version))

	if a.profile.Enabled() {
		s, err := profiling.Start(a.profile)
		if err != nil {
			return err
		}
		a.session = s
	}
	return nil
}

// teardown stops profiling and flushes the log file.
func (a *app) teardown() error {
	err := a.session.Stop()
	a.session = nil
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}
