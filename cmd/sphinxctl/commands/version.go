package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/adapterinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printf(cmd, "%s %s (%s)\n", adapterinfo.Info.BinaryName, adapterinfo.Version(), runtime.Version())
		},
	}
}
