package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"meeting-minutes-service/internal/models"
)

// Client calls meeting.v1.TranscriptService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// PushSegment sends one segment to the session.
func (c *Client) PushSegment(ctx context.Context, sessionKey string, seg models.Segment, opts ...grpc.CallOption) (PushSegmentResponse, error) {
	in, err := ToStruct(PushSegmentRequest{SessionKey: sessionKey, Segment: seg})
	if err != nil {
		return PushSegmentResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, pushSegmentMethod, in, out, opts...); err != nil {
		return PushSegmentResponse{}, err
	}
	var resp PushSegmentResponse
	err = FromStruct(out, &resp)
	return resp, err
}

// TranscriptWatch receives the updates of one WatchTranscript call.
type TranscriptWatch struct {
	stream grpc.ClientStream
}

// Recv blocks for the next update.
func (w *TranscriptWatch) Recv() (TranscriptUpdate, error) {
	msg := new(structpb.Struct)
	if err := w.stream.RecvMsg(msg); err != nil {
		return TranscriptUpdate{}, err
	}
	var u TranscriptUpdate
	err := FromStruct(msg, &u)
	return u, err
}

// WatchTranscript opens an update stream for the session.
func (c *Client) WatchTranscript(ctx context.Context, sessionKey string, opts ...grpc.CallOption) (*TranscriptWatch, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], watchTranscriptMethod, opts...)
	if err != nil {
		return nil, err
	}
	in, err := ToStruct(WatchRequest{SessionKey: sessionKey})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &TranscriptWatch{stream: stream}, nil
}
