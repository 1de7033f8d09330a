package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newResolveCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the resolved recognizer options as YAML",
		Long: `Resolve the recognizer options exactly as a new session would:
explicit paths win, the model set fills the rest relative to the model
directory, and sample rate and FFT size fall back to their defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			resolver, err := cfg.Resolver(flags.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			opts, err := resolver.Resolve(ctx, cfg.RecognizerOptions())
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(opts); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "model directory lookup timeout")
	return cmd
}
