// Package grpcapi serves meeting.v1.TranscriptService. Messages are carried
// as google.protobuf.Struct so the service needs no generated code.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"meeting-minutes-service/internal/app"
	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/schema"
	"meeting-minutes-service/internal/service/transcript"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "meeting.v1.TranscriptService"

const (
	pushSegmentMethod     = "/" + ServiceName + "/PushSegment"
	watchTranscriptMethod = "/" + ServiceName + "/WatchTranscript"
)

// TranscriptServiceServer is the server API of meeting.v1.TranscriptService.
type TranscriptServiceServer interface {
	PushSegment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchTranscript(*structpb.Struct, grpc.ServerStream) error
}

// ServiceDesc describes meeting.v1.TranscriptService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TranscriptServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PushSegment", Handler: pushSegmentHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchTranscript", Handler: watchTranscriptHandler, ServerStreams: true},
	},
	Metadata: "meeting/v1/transcript.proto",
}

func pushSegmentHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TranscriptServiceServer).PushSegment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: pushSegmentMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TranscriptServiceServer).PushSegment(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func watchTranscriptHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TranscriptServiceServer).WatchTranscript(in, stream)
}

// PushSegmentRequest carries one externally recognized segment.
type PushSegmentRequest struct {
	SessionKey string         `json:"sessionKey"`
	Segment    models.Segment `json:"segment"`
}

// PushSegmentResponse acknowledges a merged segment.
type PushSegmentResponse struct {
	SessionKey string `json:"sessionKey"`
	SegmentID  string `json:"segmentId"`
	Segments   int    `json:"segments"`
}

// WatchRequest selects the session to watch.
type WatchRequest struct {
	SessionKey string `json:"sessionKey"`
}

// TranscriptUpdate is streamed for every merged change, preceded by one
// snapshot update.
type TranscriptUpdate struct {
	Kind       string          `json:"kind"`
	SessionKey string          `json:"sessionKey"`
	Segment    *models.Segment `json:"segment,omitempty"`
	Transcript string          `json:"transcript"`
}

// Server implements TranscriptServiceServer over the application sessions.
type Server struct {
	app    *app.Application
	logger zerolog.Logger
}

// Register adds the transcript service to g.
func Register(g *grpc.Server, application *app.Application) *Server {
	s := &Server{app: application, logger: logging.WithComponent("grpc")}
	g.RegisterService(&ServiceDesc, s)
	return s
}

// PushSegment merges one segment into the session, creating the session on
// first use.
func (s *Server) PushSegment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req PushSegmentRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SessionKey == "" {
		return nil, status.Error(codes.InvalidArgument, "sessionKey is required")
	}

	sess, err := s.sessionOrCreate(req.SessionKey)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := sess.PushSegment(ctx, req.Segment); err != nil {
		return nil, toStatus(err)
	}

	return ToStruct(PushSegmentResponse{
		SessionKey: sess.Key(),
		SegmentID:  req.Segment.Key().String(),
		Segments:   sess.Merger().Len(),
	})
}

func (s *Server) sessionOrCreate(key string) (*app.Session, error) {
	sess, err := s.app.Session(key)
	if err == nil {
		return sess, nil
	}
	sess, err = s.app.CreateSession(key)
	if errors.Is(err, app.ErrSessionExists) {
		return s.app.Session(key)
	}
	return sess, err
}

// WatchTranscript streams a snapshot followed by every change of the
// session until the client cancels.
func (s *Server) WatchTranscript(in *structpb.Struct, stream grpc.ServerStream) error {
	var req WatchRequest
	if err := FromStruct(in, &req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.app.Session(req.SessionKey)
	if err != nil {
		return toStatus(err)
	}
	merger := sess.Merger()

	updates := make(chan TranscriptUpdate, 256)
	unsubscribe := merger.Subscribe(func(c transcript.Change) {
		u := TranscriptUpdate{Kind: string(c.Kind), SessionKey: sess.Key()}
		if c.Kind != transcript.ChangeCleared {
			seg := c.Segment
			u.Segment = &seg
		}
		select {
		case updates <- u:
		default:
			s.logger.Warn().Str("sessionKey", sess.Key()).Msg("Watch queue full, update dropped")
		}
	})
	defer unsubscribe()

	if err := send(stream, TranscriptUpdate{Kind: "snapshot", SessionKey: sess.Key(), Transcript: merger.Render()}); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-updates:
			u.Transcript = merger.Render()
			if err := send(stream, u); err != nil {
				return err
			}
		}
	}
}

func send(stream grpc.ServerStream, u TranscriptUpdate) error {
	msg, err := ToStruct(u)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.SendMsg(msg)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, schema.ErrInvalidSegment):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// ToStruct converts a JSON-tagged value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("struct payload must be a JSON object: %w", err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes a Struct into a JSON-tagged value.
func FromStruct(s *structpb.Struct, out any) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
