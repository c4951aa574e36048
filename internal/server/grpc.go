package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/transcription"
)

// TranscriptionsServiceName is the fully qualified gRPC service name.
const TranscriptionsServiceName = "transcripts.v1.Transcriptions"

// AccountMetadataKey carries the caller's account reference on gRPC calls.
const AccountMetadataKey = "x-account-id"

// TranscriptionsServer is the gRPC surface over transcription.Service.
// Requests and responses are google.protobuf.Struct documents.
type TranscriptionsServer interface {
	Retrieve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reconcile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	mustEmbedUnimplementedTranscriptionsServer()
}

// UnimplementedTranscriptionsServer must be embedded by implementations so methods
// added to the service later answer Unimplemented instead of breaking the build.
type UnimplementedTranscriptionsServer struct{}

func (UnimplementedTranscriptionsServer) Retrieve(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Retrieve not implemented")
}

func (UnimplementedTranscriptionsServer) List(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method List not implemented")
}

func (UnimplementedTranscriptionsServer) Reconcile(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Reconcile not implemented")
}

func (UnimplementedTranscriptionsServer) mustEmbedUnimplementedTranscriptionsServer() {}

// TranscriptionsServiceDesc describes TranscriptionsServer for grpc.Server.RegisterService.
var TranscriptionsServiceDesc = grpc.ServiceDesc{
	ServiceName: TranscriptionsServiceName,
	HandlerType: (*TranscriptionsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Retrieve", Handler: unaryHandler("Retrieve", TranscriptionsServer.Retrieve)},
		{MethodName: "List", Handler: unaryHandler("List", TranscriptionsServer.List)},
		{MethodName: "Reconcile", Handler: unaryHandler("Reconcile", TranscriptionsServer.Reconcile)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "transcripts/v1/transcriptions.proto",
}

func unaryHandler(method string, call func(TranscriptionsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + TranscriptionsServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TranscriptionsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TranscriptionsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterTranscriptionsServer registers impl on s.
func RegisterTranscriptionsServer(s grpc.ServiceRegistrar, impl TranscriptionsServer) {
	s.RegisterService(&TranscriptionsServiceDesc, impl)
}

// TranscriptionsService implements TranscriptionsServer.
type TranscriptionsService struct {
	UnimplementedTranscriptionsServer

	svc      *transcription.Service
	accounts common.AccountsConfig
	pageSize int
	logger   *slog.Logger
}

func NewTranscriptionsService(svc *transcription.Service, cfg *common.Config, logger *slog.Logger) *TranscriptionsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptionsService{
		svc:      svc,
		accounts: cfg.Accounts,
		pageSize: cfg.Server.ListPageSize,
		logger:   logger,
	}
}

// Retrieve expects {"id": string, "wait"?: bool, "max_wait_seconds"?: number}.
func (s *TranscriptionsService) Retrieve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	fields := req.GetFields()
	id := strings.TrimSpace(fields["id"].GetStringValue())
	if id == "" {
		return nil, errInvalidArg("id is required")
	}
	opts := transcription.RetrieveOptions{Wait: fields["wait"].GetBoolValue()}
	if secs := fields["max_wait_seconds"].GetNumberValue(); secs > 0 {
		opts.MaxWait = time.Duration(secs * float64(time.Second))
	}

	snap, err := s.svc.Retrieve(ctx, owner, id, opts)
	if err != nil {
		s.logger.Info("grpc.retrieve.failed", "job_id", id, "owner", owner, "error", err)
		return nil, common.GRPCStatus(err)
	}
	return toStruct(snap)
}

// List expects {"page"?: number, "page_size"?: number}.
func (s *TranscriptionsService) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	fields := req.GetFields()
	page := int(fields["page"].GetNumberValue())
	if page == 0 {
		page = 1
	}
	pageSize := int(fields["page_size"].GetNumberValue())
	if pageSize == 0 {
		pageSize = s.pageSize
	}

	out, err := s.svc.List(ctx, owner, page, pageSize)
	if err != nil {
		s.logger.Error("grpc.list.failed", "owner", owner, "error", err)
		return nil, common.GRPCStatus(err)
	}
	return toStruct(out)
}

// Reconcile takes an empty request and returns the sync stats plus an optional warning.
func (s *TranscriptionsService) Reconcile(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	stats, err := s.svc.Reconcile(ctx, owner)
	resp := map[string]any{"stats": stats}
	if err != nil {
		if !errors.Is(err, common.ErrReconciliation) {
			return nil, common.GRPCStatus(err)
		}
		resp["warning"] = common.PublicMessage(err)
	}
	return toStruct(resp)
}

func (s *TranscriptionsService) owner(ctx context.Context) (string, error) {
	var explicit string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(AccountMetadataKey); len(v) > 0 {
			explicit = strings.TrimSpace(v[0])
		}
	}
	return common.ResolveOwner(explicit, s.accounts)
}

// NewGRPCServer builds a gRPC server with the transcription and health services registered.
func NewGRPCServer(impl TranscriptionsServer, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(opts...)
	RegisterTranscriptionsServer(gs, impl)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(TranscriptionsServiceName, healthpb.HealthCheckResponse_SERVING)
	return gs, hs
}

func errInvalidArg(msg string) error {
	return common.InvalidArgumentError(msg)
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalError("encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, common.InternalError("encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalError("encode response")
	}
	return out, nil
}
