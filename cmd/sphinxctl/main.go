// Command sphinxctl inspects model configuration and transcribes raw PCM
// files with the same pipeline the adapter serves.
//
// Usage:
//
//	sphinxctl [flags] <command> [args]
//
// Commands:
//
//	models      - list model sets and decoder backends
//	resolve     - print the fully resolved recognizer options
//	transcribe  - decode a raw PCM file and print utterances
//	version     - print the adapter version
//
// Configuration is read from the same environment variables and config
// file as the adapter; flags override them.
package main

import (
	"fmt"
	"os"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/cmd/sphinxctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
