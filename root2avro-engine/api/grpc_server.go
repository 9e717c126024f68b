package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/VanDung-dev/root2avro/bridge"
)

// Version is the current version of root2avro.
const Version = "0.1.0"

const (
	grpcServiceName  = "root2avro.Converter"
	grpcConvert      = "/" + grpcServiceName + "/Convert"
	grpcHealthCheck  = "/" + grpcServiceName + "/HealthCheck"
	grpcContentCodec = "json"
)

// jsonCodec carries gRPC messages as JSON; Arrow payloads are base64 bytes.
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return grpcContentCodec }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ConvertRequest is a gRPC conversion request.
type ConvertRequest struct {
	Token   string          `json:"token,omitempty"`
	Options *bridge.Options `json:"options,omitempty"`
	Arrow   []byte          `json:"arrow"`
}

// ConvertResponse carries the converted output and its counters.
type ConvertResponse struct {
	Data             []byte `json:"data"`
	EntriesRead      int64  `json:"entries_read"`
	EntriesWritten   int64  `json:"entries_written"`
	EntriesSkipped   int64  `json:"entries_skipped"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// Empty is an empty message.
type Empty struct{}

// HealthResponse reports the server state.
type HealthResponse struct {
	Healthy       bool   `json:"healthy"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Conversions   int64  `json:"conversions"`
	Failures      int64  `json:"failures"`
}

// ConverterService is the gRPC conversion service.
type ConverterService interface {
	Convert(context.Context, *ConvertRequest) (*ConvertResponse, error)
	HealthCheck(context.Context, *Empty) (*HealthResponse, error)
}

var converterServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*ConverterService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Convert", Handler: convertHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "root2avro",
}

func convertHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ConvertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConverterService).Convert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: grpcConvert}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConverterService).Convert(ctx, req.(*ConvertRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConverterService).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: grpcHealthCheck}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConverterService).HealthCheck(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCConfig holds configuration for the gRPC server.
type GRPCConfig struct {
	// MaxRecvMsgSize is the maximum message size in bytes
	MaxRecvMsgSize int

	// MaxSendMsgSize is the maximum message size in bytes
	MaxSendMsgSize int
}

// DefaultGRPCConfig returns a GRPCConfig with sensible defaults.
func DefaultGRPCConfig() GRPCConfig {
	return GRPCConfig{
		MaxRecvMsgSize: MaxMessageSize,
		MaxSendMsgSize: MaxMessageSize,
	}
}

// GRPCServer implements ConverterService.
type GRPCServer struct {
	config  GRPCConfig
	handler *ConversionHandler
	metrics *Metrics
	log     logrus.FieldLogger

	grpcServer *grpc.Server
	listener   net.Listener
	startTime  time.Time

	conversions int64
	failures    int64

	running bool
	mu      sync.RWMutex
}

// NewGRPCServer creates a gRPC server. metrics may be nil.
func NewGRPCServer(config GRPCConfig, handler *ConversionHandler, metrics *Metrics, log logrus.FieldLogger) *GRPCServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &GRPCServer{
		config:    config,
		handler:   handler,
		metrics:   metrics,
		log:       log,
		startTime: time.Now(),
	}
}

// StartAsync starts the gRPC server and returns immediately.
func (s *GRPCServer) StartAsync(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = lis

	s.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(s.config.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(s.config.MaxSendMsgSize),
	)
	s.grpcServer.RegisterService(&converterServiceDesc, s)

	s.running = true
	s.startTime = time.Now()

	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			s.log.WithError(err).Warn("gRPC server stopped")
		}
	}()

	s.log.WithField("address", lis.Addr().String()).Info("gRPC server listening")
	return nil
}

// Addr returns the listener address, or nil if not started.
func (s *GRPCServer) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the gRPC server.
func (s *GRPCServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	srv := s.grpcServer
	s.mu.Unlock()

	// Handlers in flight take the read lock, so wait without holding it.
	if srv != nil {
		srv.GracefulStop()
	}
}

// Convert converts the Arrow payload of one request.
func (s *GRPCServer) Convert(ctx context.Context, req *ConvertRequest) (*ConvertResponse, error) {
	if req == nil || len(req.Arrow) == 0 {
		return nil, status.Error(codes.InvalidArgument, bridge.ErrEmptyRequest.Error())
	}

	start := time.Now()
	out, stats, err := s.handler.HandleRequest(ctx, req.Token, req.Options, req.Arrow)
	if s.metrics != nil {
		s.metrics.RecordRequest("grpc", len(req.Arrow), err, time.Since(start))
	}
	if err != nil {
		atomic.AddInt64(&s.failures, 1)
		s.log.WithError(err).WithField("bytes", len(req.Arrow)).Warn("Request failed")
		return nil, grpcError(err)
	}
	atomic.AddInt64(&s.conversions, 1)

	return &ConvertResponse{
		Data:             out,
		EntriesRead:      stats.Read,
		EntriesWritten:   stats.Written,
		EntriesSkipped:   stats.Skipped,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// HealthCheck returns the health status of the server.
func (s *GRPCServer) HealthCheck(_ context.Context, _ *Empty) (*HealthResponse, error) {
	s.mu.RLock()
	running := s.running
	startTime := s.startTime
	s.mu.RUnlock()

	return &HealthResponse{
		Healthy:       running,
		Version:       Version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Conversions:   atomic.LoadInt64(&s.conversions),
		Failures:      atomic.LoadInt64(&s.failures),
	}, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrAuthTokenMismatch):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.InvalidArgument, err.Error())
	}
}

// GRPCClient calls a GRPCServer.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC creates a plaintext client for address.
func DialGRPC(address string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(grpcContentCodec),
			grpc.MaxCallRecvMsgSize(MaxMessageSize),
			grpc.MaxCallSendMsgSize(MaxMessageSize),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Convert sends one conversion request.
func (c *GRPCClient) Convert(ctx context.Context, req *ConvertRequest) (*ConvertResponse, error) {
	resp := new(ConvertResponse)
	if err := c.conn.Invoke(ctx, grpcConvert, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// HealthCheck queries the server state.
func (c *GRPCClient) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	resp := new(HealthResponse)
	if err := c.conn.Invoke(ctx, grpcHealthCheck, &Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
