package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psaab/bigsh/pkg/schema"
	"github.com/psaab/bigsh/pkg/selector"
)

const grpcServiceName = "bigsh.v1.Datastore"

// datastoreServer is the handler type of the Datastore service. Requests
// and responses are structpb.Struct so no generated code is needed.
type datastoreServer interface {
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Apply(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(datastoreServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(datastoreServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + grpcServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(datastoreServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var datastoreServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*datastoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Query", datastoreServer.Query),
		unaryHandler("Apply", datastoreServer.Apply),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bigsh/v1/datastore.proto",
}

// GRPCServer exposes a Store as the Datastore gRPC service.
type GRPCServer struct {
	store Store
	log   *slog.Logger
}

// NewGRPCServer wraps store.
func NewGRPCServer(store Store, log *slog.Logger) *GRPCServer {
	if log == nil {
		log = slog.Default()
	}
	return &GRPCServer{store: store, log: log}
}

// Register adds the service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	srv.RegisterService(&datastoreServiceDesc, s)
}

func (s *GRPCServer) Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := req.AsMap()
	path, _ := in["path"].(string)
	filter, _ := in["filter"].(map[string]any)
	_, v, err := s.store.Query(ctx, path, filter)
	if err != nil {
		s.log.Debug("grpc query failed", "path", path, "err", err)
		return nil, toStatus(err)
	}
	out, err := structpb.NewStruct(map[string]any{"value": v})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding %s: %v", path, err)
	}
	return out, nil
}

func (s *GRPCServer) Apply(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := req.AsMap()
	body := PlanBody{}
	body.Op, _ = in["op"].(string)
	body.Selector, _ = in["selector"].(string)
	body.Data, _ = in["data"].(map[string]any)
	plan, err := body.Plan()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.store.Apply(ctx, plan); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

var codeMap = []struct {
	http int
	grpc codes.Code
}{
	{http.StatusBadRequest, codes.InvalidArgument},
	{http.StatusUnauthorized, codes.Unauthenticated},
	{http.StatusForbidden, codes.PermissionDenied},
	{http.StatusNotFound, codes.NotFound},
	{http.StatusConflict, codes.AlreadyExists},
	{http.StatusServiceUnavailable, codes.Unavailable},
}

func toStatus(err error) error {
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	if code, ok := CodeOf(err); ok {
		for _, m := range codeMap {
			if m.http == code {
				return status.Error(m.grpc, err.Error())
			}
		}
	}
	return status.Error(codes.Internal, err.Error())
}

func fromStatus(err error, path string) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Canceled:
		return fmt.Errorf("%s: %w", path, context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", path, context.DeadlineExceeded)
	}
	for _, m := range codeMap {
		if m.grpc == st.Code() {
			return &Error{Code: m.http, Path: path, Err: errors.New(st.Message())}
		}
	}
	return &Error{Code: http.StatusInternalServerError, Path: path, Err: errors.New(st.Message())}
}

// GRPCClient is a Store reached over the Datastore gRPC service.
type GRPCClient struct {
	conn grpc.ClientConnInterface

	mu    sync.Mutex
	model *schema.Model
}

// NewGRPCClient returns a client over conn answering schema lookups from m.
func NewGRPCClient(conn grpc.ClientConnInterface, m *schema.Model) *GRPCClient {
	return &GRPCClient{conn: conn, model: m}
}

// Query implements Querier.
func (c *GRPCClient) Query(ctx context.Context, path string, filter map[string]any) (*schema.Node, any, error) {
	path = schema.Clean(path)
	c.mu.Lock()
	m := c.model
	c.mu.Unlock()
	node, err := m.Lookup(path)
	if err != nil {
		return nil, nil, &Error{Code: http.StatusNotFound, Path: path, Err: err}
	}
	args := map[string]any{"path": path}
	if len(filter) > 0 {
		args["filter"] = normalize(filter)
	}
	req, err := structpb.NewStruct(args)
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", path, err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+grpcServiceName+"/Query", req, resp); err != nil {
		return nil, nil, fromStatus(err, path)
	}
	return node, resp.AsMap()["value"], nil
}

// Apply implements Mutator.
func (c *GRPCClient) Apply(ctx context.Context, plan selector.Plan) error {
	args := map[string]any{"op": plan.Op.String(), "selector": plan.Selector}
	if len(plan.Data) > 0 {
		args["data"] = normalize(plan.Data)
	}
	req, err := structpb.NewStruct(args)
	if err != nil {
		return fmt.Errorf("apply %s: %w", plan.Selector, err)
	}
	if err := c.conn.Invoke(ctx, "/"+grpcServiceName+"/Apply", req, new(structpb.Struct)); err != nil {
		return fmt.Errorf("apply: %w", fromStatus(err, plan.Selector))
	}
	return nil
}

// normalize converts the value shapes structpb rejects, such as typed
// slices, into []any and map[string]any.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case []int:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	}
	return v
}
