package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/config"
)

// globalFlags override the loaded configuration.
type globalFlags struct {
	modelDir string
	modelSet string
	engine   string
	verbose  bool
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "sphinxctl",
		Short: "PocketSphinx recognizer tooling",
		Long: `sphinxctl - inspect and exercise the local PocketSphinx recognizer.

Settings come from the adapter environment (POCKETSPHINX_MODELDIR,
NUPI_MODEL_SET, NUPI_ADAPTER_ENGINE, ...) and the optional config file
named by NUPI_ADAPTER_CONFIG_FILE. Flags take precedence.

Examples:
  sphinxctl models
  sphinxctl resolve --model-set hub4
  sphinxctl transcribe --engine stub recording.raw
  arecord -f S16_LE -r 16000 -c 1 -t raw | sphinxctl transcribe -`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.modelDir, "model-dir", "", "model base directory (skips pkg-config)")
	pf.StringVar(&flags.modelSet, "model-set", "", "model set from the manifest")
	pf.StringVar(&flags.engine, "engine", "", "decoder backend: auto, stub, pocketsphinx, vosk")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		newModelsCmd(flags),
		newResolveCmd(flags),
		newTranscribeCmd(flags),
		newVersionCmd(),
	)
	return root
}

// load reads the adapter configuration and applies flag overrides.
func (f *globalFlags) load() (config.Config, error) {
	cfg, err := config.Loader{}.Load()
	if err != nil {
		return config.Config{}, err
	}
	if v := strings.TrimSpace(f.modelDir); v != "" {
		cfg.ModelDir = v
	}
	if v := strings.TrimSpace(f.modelSet); v != "" {
		cfg.ModelSet = v
	}
	if v := strings.TrimSpace(f.engine); v != "" {
		cfg.Engine = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (f *globalFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
