package server

import (
	"context"
	"errors"
	"time"

	"github.com/devghori1264/vinreport/internal/models"
	"github.com/devghori1264/vinreport/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct so no generated code is needed.
const ServiceName = "vinreport.v1.ReportService"

const (
	generateMethod = "/" + ServiceName + "/Generate"
	lookupMethod   = "/" + ServiceName + "/Lookup"
)

type reportService interface {
	generateRPC(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	lookupRPC(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*reportService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
		{MethodName: "Lookup", Handler: lookupHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vinreport/v1/report.proto",
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(reportService)
	if interceptor == nil {
		return s.generateRPC(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: generateMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return s.generateRPC(ctx, req.(*structpb.Struct))
	})
}

func lookupHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(reportService)
	if interceptor == nil {
		return s.lookupRPC(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: lookupMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return s.lookupRPC(ctx, req.(*structpb.Struct))
	})
}

// generateRPC returns the outcome as data, failed runs included; the
// status is an error only for malformed requests.
func (s *Server) generateRPC(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	vin := stringField(in, "vin")
	if vin == "" {
		return nil, status.Error(codes.InvalidArgument, ErrVINRequired.Error())
	}
	out := s.Generate(ctx, vin, stringField(in, "email"))
	return outcomeStruct(out), nil
}

func (s *Server) lookupRPC(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a, err := s.Lookup(ctx, stringField(in, "vin"))
	switch {
	case errors.Is(err, ErrVINRequired):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return nil, status.Error(codes.NotFound, "no report for vin")
	case err != nil:
		return nil, status.Error(codes.Internal, "lookup failed")
	}
	return artifactStruct(a), nil
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

// outcomeStruct mirrors the HTTP JSON body, plus run_id and state.
func outcomeStruct(out models.PipelineOutcome) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"success": structpb.NewBoolValue(out.Success),
		"message": structpb.NewStringValue(out.Message),
		"email":   structpb.NewNullValue(),
		"run_id":  structpb.NewStringValue(out.RunID),
		"state":   structpb.NewStringValue(out.State),
	}
	if out.Location != nil {
		fields["download"] = structpb.NewStringValue(*out.Location)
	}
	if n := out.Notification; n != nil {
		fields["email"] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"ok":      structpb.NewBoolValue(n.Delivered),
			"message": structpb.NewStringValue(n.Detail),
		}})
	}
	if out.Error != "" {
		fields["error"] = structpb.NewStringValue(out.Error)
	}
	return &structpb.Struct{Fields: fields}
}

func artifactStruct(a models.ReportArtifact) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"vin":          structpb.NewStringValue(a.VIN),
		"download":     structpb.NewStringValue(a.Location),
		"content_type": structpb.NewStringValue(a.ContentType),
		"size":         structpb.NewNumberValue(float64(a.Size)),
		"digest":       structpb.NewStringValue(a.Digest),
		"created_at":   structpb.NewStringValue(a.CreatedAt.UTC().Format(time.RFC3339)),
	}}
}

// Client calls ReportService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Generate asks the server to build the report for vin.
func (c *Client) Generate(ctx context.Context, vin, email string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"vin": structpb.NewStringValue(vin),
	}}
	if email != "" {
		in.Fields["email"] = structpb.NewStringValue(email)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, generateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup fetches stored artifact metadata for vin.
func (c *Client) Lookup(ctx context.Context, vin string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"vin": structpb.NewStringValue(vin),
	}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, lookupMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
