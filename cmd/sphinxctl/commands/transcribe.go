package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/audio"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/events"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/session"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/telemetry"
)

type transcribeFlags struct {
	format  string
	rate    int
	chunkMS int
	json    bool
}

func newTranscribeCmd(flags *globalFlags) *cobra.Command {
	tf := &transcribeFlags{}
	cmd := &cobra.Command{
		Use:   "transcribe <file|->",
		Short: "Decode a raw PCM file and print each utterance",
		Long: `Stream a headerless mono PCM file through a decoding session in
fixed-size chunks. Use "-" to read standard input. Speech still open at the
end of the input is flushed.

Text output has one line per utterance: id, score, hypothesis.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, flags, tf, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&tf.format, "format", "s16le", "input sample format: s16le or f32le")
	f.IntVar(&tf.rate, "rate", 0, "input sample rate (default: the decoder rate)")
	f.IntVar(&tf.chunkMS, "chunk-ms", 100, "audio per submitted chunk in milliseconds")
	f.BoolVar(&tf.json, "json", false, "print one JSON record per event")
	return cmd
}

func runTranscribe(cmd *cobra.Command, flags *globalFlags, tf *transcribeFlags, path string) error {
	format, err := audio.ParseFormat(tf.format)
	if err != nil {
		return err
	}
	if tf.chunkMS <= 0 {
		return fmt.Errorf("--chunk-ms must be positive")
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	logger := flags.logger(cmd.ErrOrStderr())
	resolver, err := cfg.Resolver(logger)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	recorder := telemetry.NewRecorder(logger)
	sess := session.New(session.Params{
		Options:  cfg.RecognizerOptions(),
		Resolver: resolver,
		Engine:   cfg.EngineKind(),
		Endpoint: cfg.EndpointConfig(),
		Recorder: recorder,
		Metadata: map[string]string{"source": path},
		Logger:   logger,
	})
	defer sess.Close()

	printed := make(chan error, 1)
	go func() { printed <- printEvents(cmd, sess.Events(), tf.json) }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := sess.Wait(ctx); err != nil {
		_ = sess.Close()
		<-printed
		return err
	}

	opts := sess.Options()
	rate := tf.rate
	if rate == 0 {
		rate = opts.SampleRate
	}
	conv, err := audio.NewConverter(format, rate, opts.SampleRate)
	if err != nil {
		return err
	}

	buf := make([]byte, rate*tf.chunkMS/1000*format.SampleBytes())
	if len(buf) == 0 {
		buf = make([]byte, format.SampleBytes())
	}
	for {
		n, readErr := io.ReadFull(in, buf)
		if n > 0 {
			pcm, err := conv.ConvertBytes(buf[:n])
			if err != nil {
				return err
			}
			if err := sess.Submit(pcm); err != nil {
				break
			}
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	tail, err := conv.Flush()
	if err != nil {
		return err
	}
	if err := sess.Submit(audio.Int16ToBytes(tail)); err != nil && !errors.Is(err, session.ErrNotReady) {
		return err
	}

	shutdownErr := sess.Shutdown(ctx)
	if err := <-printed; err != nil {
		return err
	}

	if shutdownErr != nil {
		return shutdownErr
	}
	if flags.verbose {
		recorder.LogSummary()
	}
	if snap := recorder.Snapshot(); snap.TotalFaults > 0 {
		return errors.New("decoder failed; see errors above")
	}
	return nil
}

// printEvents writes events until the stream closes.
func printEvents(cmd *cobra.Command, stream <-chan events.Event, asJSON bool) error {
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	var writeErr error
	for ev := range stream {
		if writeErr != nil {
			continue
		}
		switch {
		case asJSON:
			writeErr = enc.Encode(ev.Record())
		case ev.Kind == events.KindUtterance:
			_, writeErr = fmt.Fprintf(out, "%s\t%.2f\t%s\n", ev.Utterance.UtteranceID, ev.Utterance.Score, ev.Utterance.Text)
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "error [%s] chunk %d: %s\n", ev.ErrorKind(), ev.Sequence, ev.Message())
		}
	}
	return writeErr
}
