package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/events"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "nupi.pocketsphinx.v1.Recognizer"

const recognizeMethod = "/" + ServiceName + "/Recognize"

// RecognizeRequest is one client message. The first message may carry
// option overrides and metadata; later ones carry audio or a flush.
type RecognizeRequest struct {
	Options  *models.Options   `json:"options,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// Audio is s16le mono PCM at the resolved sample rate.
	Audio []byte `json:"audio,omitempty"`
	Flush bool   `json:"flush,omitempty"`
}

// RecognizeResponse is one event sent to the client.
type RecognizeResponse struct {
	events.Record
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RecognizerServer is the server API of the recognizer service.
type RecognizerServer interface {
	Recognize(RecognizeServerStream) error
}

// RecognizeServerStream is the server side of a Recognize call.
type RecognizeServerStream interface {
	Send(*RecognizeResponse) error
	Recv() (*RecognizeRequest, error)
	grpc.ServerStream
}

type recognizeServerStream struct {
	grpc.ServerStream
}

func (s *recognizeServerStream) Send(m *RecognizeResponse) error {
	return s.ServerStream.SendMsg(m)
}

func (s *recognizeServerStream) Recv() (*RecognizeRequest, error) {
	m := new(RecognizeRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func recognizeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(RecognizerServer).Recognize(&recognizeServerStream{stream})
}

// ServiceDesc describes the recognizer service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecognizerServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Recognize",
			Handler:       recognizeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

// RegisterRecognizerServer registers srv on s.
func RegisterRecognizerServer(s grpc.ServiceRegistrar, srv RecognizerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// RecognizerClient calls the recognizer service.
type RecognizerClient struct {
	cc grpc.ClientConnInterface
}

// NewRecognizerClient returns a client bound to cc.
func NewRecognizerClient(cc grpc.ClientConnInterface) *RecognizerClient {
	return &RecognizerClient{cc: cc}
}

// RecognizeClientStream is the client side of a Recognize call.
type RecognizeClientStream interface {
	Send(*RecognizeRequest) error
	Recv() (*RecognizeResponse, error)
	grpc.ClientStream
}

type recognizeClientStream struct {
	grpc.ClientStream
}

func (s *recognizeClientStream) Send(m *RecognizeRequest) error {
	return s.ClientStream.SendMsg(m)
}

func (s *recognizeClientStream) Recv() (*RecognizeResponse, error) {
	m := new(RecognizeResponse)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Recognize opens a bidirectional recognition stream.
func (c *RecognizerClient) Recognize(ctx context.Context, opts ...grpc.CallOption) (RecognizeClientStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], recognizeMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &recognizeClientStream{stream}, nil
}
