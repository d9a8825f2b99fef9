package presence

import "google.golang.org/grpc"

// DriverUpdate is one streamed presence report from a driver app.
type DriverUpdate struct {
	DriverId string
	Status   string
	Lat      float64
	Lng      float64
	Speed    float64
	Accuracy float64
	Ts       int64
}

// Ack is returned when the stream closes.
type Ack struct{}

// PresenceServer defines the gRPC contract.
type PresenceServer interface {
	StreamPresence(Presence_StreamPresenceServer) error
}

// RegisterPresenceServer registers the service implementation.
func RegisterPresenceServer(s *grpc.Server, srv PresenceServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "presence.Presence",
		HandlerType: (*PresenceServer)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "StreamPresence",
			Handler:       _Presence_StreamPresence_Handler,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, srv)
}

// Presence_StreamPresenceServer defines the bidi stream interface.
type Presence_StreamPresenceServer interface {
	grpc.ServerStream
	SendAndClose(*Ack) error
	Recv() (*DriverUpdate, error)
}

func _Presence_StreamPresence_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(PresenceServer).StreamPresence(&presenceStreamServer{ServerStream: stream})
}

type presenceStreamServer struct {
	grpc.ServerStream
}

func (s *presenceStreamServer) SendAndClose(*Ack) error { return nil }

func (s *presenceStreamServer) Recv() (*DriverUpdate, error) {
	msg := new(DriverUpdate)
	if err := s.ServerStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
