package server_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/audio"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/config"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/server"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/session"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/telemetry"
)

const bufSize = 1024 * 1024

func pcm(speech, silence time.Duration) []byte {
	const rate = 16000
	n := int(rate * speech / time.Second)
	samples := make([]int16, n+int(rate*silence/time.Second))
	for i := 0; i < n; i++ {
		samples[i] = int16(0.3 * 32767 * math.Sin(2*math.Pi*300*float64(i)/rate))
	}
	return audio.Int16ToBytes(samples)
}

func startServer(t *testing.T, ctx context.Context, recorder *telemetry.Recorder) *server.RecognizerClient {
	t.Helper()
	return startServerWithEngine(t, ctx, recorder, nil)
}

func startServerWithEngine(t *testing.T, ctx context.Context, recorder *telemetry.Recorder, factory session.EngineFactory) *server.RecognizerClient {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lis := bufconn.Listen(bufSize)
	t.Cleanup(func() { lis.Close() })

	grpcServer := grpc.NewServer()
	t.Cleanup(grpcServer.Stop)

	cfg := config.Config{
		ListenAddr: "bufconn",
		Engine:     "stub",
		LogLevel:   "debug",
	}
	resolver, err := models.NewResolver(models.StaticLookup("/opt/models"), logger)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	srv := server.New(cfg, logger, resolver, recorder)
	if factory != nil {
		srv.SetEngineFactory(factory)
	}
	server.RegisterRecognizerServer(grpcServer, srv)

	go func() {
		if err := grpcServer.Serve(lis); err != nil &&
			!errors.Is(err, grpc.ErrServerStopped) &&
			!errors.Is(err, net.ErrClosed) &&
			err.Error() != "closed" {
			t.Errorf("Serve() error: %v", err)
		}
	}()

	conn, err := grpc.DialContext(ctx, "bufconn",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return server.NewRecognizerClient(conn)
}

func TestRecognizeStub(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recorder := telemetry.NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	client := startServer(t, ctx, recorder)

	stream, err := client.Recognize(ctx)
	if err != nil {
		t.Fatalf("Recognize error: %v", err)
	}

	if err := stream.Send(&server.RecognizeRequest{
		Metadata: map[string]string{server.MetadataModelSet: "hub4", "source": "test"},
		Audio:    pcm(0, 300*time.Millisecond),
	}); err != nil {
		t.Fatalf("Send init error: %v", err)
	}
	if err := stream.Send(&server.RecognizeRequest{Audio: pcm(500*time.Millisecond, 1200*time.Millisecond)}); err != nil {
		t.Fatalf("Send utterance error: %v", err)
	}
	if err := stream.Send(&server.RecognizeRequest{Audio: pcm(400*time.Millisecond, 0)}); err != nil {
		t.Fatalf("Send trailing speech error: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend error: %v", err)
	}

	first, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv 1 error: %v", err)
	}
	if first.Event != "utterance" || first.Hyp == "" {
		t.Fatalf("unexpected first response %+v", first)
	}
	if first.Sequence != 2 || first.Utterance != "000000001" {
		t.Fatalf("unexpected sequence/utterance id: %d %q", first.Sequence, first.Utterance)
	}
	if first.Score == nil {
		t.Fatal("expected a score")
	}
	if got := first.Metadata["model_set"]; got != "hub4" {
		t.Fatalf("metadata override ignored, model_set=%q", got)
	}
	if got := first.Metadata["generator"]; got == "" {
		t.Fatal("expected generator metadata")
	}

	// Closing the send side flushes the trailing speech.
	second, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv 2 error: %v", err)
	}
	if second.Event != "utterance" || second.Sequence != 3 || second.Utterance != "000000002" {
		t.Fatalf("unexpected flushed response %+v", second)
	}

	if _, err := stream.Recv(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for recorder.Snapshot().ActiveSessions != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	snap := recorder.Snapshot()
	if snap.TotalSessions != 1 || snap.TotalUtterances != 2 || snap.ActiveSessions != 0 {
		t.Fatalf("unexpected telemetry %+v", snap)
	}
}

func TestRecognizeConfigurationError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := startServer(t, ctx, nil)
	stream, err := client.Recognize(ctx)
	if err != nil {
		t.Fatalf("Recognize error: %v", err)
	}
	if err := stream.Send(&server.RecognizeRequest{Options: &models.Options{ModelSet: "klingon"}}); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	resp, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv error: %v", err)
	}
	if resp.Event != "error" || resp.Kind != "configuration" || resp.Message == "" {
		t.Fatalf("unexpected error event %+v", resp)
	}

	_, err = stream.Recv()
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

// faultyEngine loses its decoder on the first audio it receives.
type faultyEngine struct{}

func (faultyEngine) StartUtterance() error { return nil }

func (faultyEngine) ProcessAudio(context.Context, []int16) error {
	return fmt.Errorf("%w: decoder lost", engine.ErrResourceFault)
}

func (faultyEngine) EndUtterance(context.Context) (engine.Hypothesis, error) {
	return engine.Hypothesis{}, engine.ErrNoUtterance
}

func (faultyEngine) Close() error { return nil }

func TestRecognizeDecoderFaultIsUnavailable(t *testing.T) {
	factory := func(context.Context, models.Options) (engine.Engine, error) { return faultyEngine{}, nil }

	tests := []struct {
		name string
		// moreAudio sends another chunk after the fault instead of closing
		// the send side straight away.
		moreAudio bool
	}{
		{name: "half closed"},
		{name: "audio after fault", moreAudio: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client := startServerWithEngine(t, ctx, nil, factory)
			stream, err := client.Recognize(ctx)
			if err != nil {
				t.Fatalf("Recognize error: %v", err)
			}
			if err := stream.Send(&server.RecognizeRequest{Audio: pcm(0, 300*time.Millisecond)}); err != nil {
				t.Fatalf("Send calibration error: %v", err)
			}
			if err := stream.Send(&server.RecognizeRequest{Audio: pcm(400*time.Millisecond, 0)}); err != nil {
				t.Fatalf("Send speech error: %v", err)
			}
			if !tc.moreAudio {
				if err := stream.CloseSend(); err != nil {
					t.Fatalf("CloseSend error: %v", err)
				}
			}

			resp, err := stream.Recv()
			if err != nil {
				t.Fatalf("Recv error: %v", err)
			}
			if resp.Event != "error" || resp.Kind != "resource_fault" || resp.Sequence != 2 {
				t.Fatalf("unexpected fault event %+v", resp)
			}

			if tc.moreAudio {
				// The server may already have ended the call; only the final
				// status matters.
				_ = stream.Send(&server.RecognizeRequest{Audio: pcm(400*time.Millisecond, 0)})
				_ = stream.CloseSend()
			}

			_, err = stream.Recv()
			if status.Code(err) != codes.Unavailable {
				t.Fatalf("expected Unavailable, got %v", err)
			}
		})
	}
}
