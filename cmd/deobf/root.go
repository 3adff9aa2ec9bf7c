package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"deobf/internal/config"
	"deobf/internal/jvm"
	"deobf/internal/logging"
	"deobf/internal/lookup"
	"deobf/internal/telemetry"
)

// env is the state every subcommand shares once the root has loaded the
// configuration.
type env struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	logger   *log.Logger
	shutdown func()
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "deobf",
		Short:         "Deobfuscate JVM class bundles",
		Long:          "deobf runs bytecode transformers over a JSON class bundle until nothing changes,\nthen writes the cleaned bundle back.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.shutdown != nil {
				e.shutdown()
			}
		},
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", "", "configuration file (default ./"+config.DefaultFile+" when present)")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "debug, info, warn or error; overrides the configuration")

	root.AddCommand(
		newRunCmd(e),
		newDisasmCmd(e),
		newCFGCmd(e),
		newListCmd(),
		newSchemaCmd(),
	)
	return root
}

func (e *env) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.Log.Level = e.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	e.cfg = cfg
	e.logger = logging.New(cmd.ErrOrStderr(), cfg.Log.Level)

	shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	e.shutdown = shutdown
	return nil
}

// calls returns the lookup allow-list restricted by the configuration.
func (e *env) calls() *lookup.Registry {
	return lookup.Default().Restrict(e.cfg.Lookup.Allow, e.cfg.Lookup.Deny)
}

func loadBundle(path string) (*jvm.Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := jvm.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return b, nil
}

func saveBundle(path string, b *jvm.Bundle) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jvm.Save(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
