package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/redpiler/internal/backend"
)

// EnvPrefix prefixes the environment variables that can stand in for flags:
// --io-only is read from REDPILER_IO_ONLY.
const EnvPrefix = "REDPILER"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // optional YAML config file
	Backend string // "direct" | "reference"

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Logger returns the command logger. It discards output until the root
// command's pre-run has configured it.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

// BackendKind parses the --backend flag. Empty means direct.
func (o *RootOptions) BackendKind() (backend.Kind, error) {
	if o.Backend == "" {
		return backend.Direct, nil
	}
	return backend.ParseKind(o.Backend)
}

// NewRootCommand creates the root command for the redpiler CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "redpiler",
		Short: "redpiler - compiled redstone circuit simulator",
		Long: `Simulate compiled redstone circuits tick by tick.

Circuits are node graphs in YAML, JSON or CUE. Every flag can also be set
from a REDPILER_* environment variable or from the YAML file named by
--config; flags given on the command line win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindConfig(cmd, opts.Config); err != nil {
				return WrapExitError(ExitCommandError, "loading configuration", err)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if _, err := opts.BackendKind(); err != nil {
				return WrapExitError(ExitCommandError, "invalid backend", err)
			}
			opts.logger = newLogger(cmd, opts.Verbose)
			// The backends log through the default logger.
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", backend.Direct.String(), "simulation backend (direct|reference)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// bindConfig fills every flag not set on the command line from the
// environment or the config file.
func bindConfig(cmd *cobra.Command, configFile string) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", configFile, err)
		}
	}

	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "config" || !v.IsSet(f.Name) {
			return
		}
		if err := setFlag(cmd.Flags(), f, v.Get(f.Name)); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// setFlag applies a config value to f. Lists from YAML are applied item by
// item so slice flags accumulate the same way repeated flags do.
func setFlag(fs *pflag.FlagSet, f *pflag.Flag, value any) error {
	if items, ok := value.([]any); ok {
		for _, item := range items {
			if err := fs.Set(f.Name, fmt.Sprint(item)); err != nil {
				return err
			}
		}
		return nil
	}
	return fs.Set(f.Name, fmt.Sprint(value))
}

func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
