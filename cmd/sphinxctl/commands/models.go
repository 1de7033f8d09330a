package commands

import (
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
)

func newModelsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model sets and decoder backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := models.DefaultManifest()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			printTab(tw, "NAME", "ACOUSTIC MODEL", "LANGUAGE MODEL", "DICTIONARY", "DESCRIPTION")
			for _, name := range manifest.Names() {
				set := manifest.ModelSets[name]
				if name == models.DefaultModelSet {
					name += " (default)"
				}
				printTab(tw, name, set.AcousticModel, set.LanguageModel, set.Dictionary, set.DisplayName)
			}
			printTab(tw)

			backends := make([]string, 0, 3)
			for _, kind := range engine.Available() {
				backends = append(backends, string(kind))
			}
			printTab(tw, "BACKENDS", strings.Join(backends, ", "))
			if flags.verbose {
				printTab(tw, "BASE DIR", models.DefaultBaseDir)
			}
			return nil
		},
	}
}

func printTab(tw *tabwriter.Writer, cols ...string) {
	_, _ = tw.Write([]byte(strings.Join(cols, "\t") + "\n"))
}
