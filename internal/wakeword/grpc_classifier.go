package wakeword

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// GRPCClassifier talks to a wake-word scoring service. Frames are sent as raw
// PCM16 bytes and scores come back as a struct of keyword to probability.
//
//	rpc Score(google.protobuf.BytesValue) returns (google.protobuf.Struct)
//	rpc Reset(google.protobuf.Empty) returns (google.protobuf.Empty)
type GRPCClassifier struct {
	address string
	service string
	timeout time.Duration
	logger  zerolog.Logger

	mu             sync.RWMutex
	conn           *grpc.ClientConn
	circuitBreaker *resilience.CircuitBreaker
}

// NewGRPCClassifier creates a client for the scoring service at cfg.WakewordURL.
// The connection is established lazily by the first call. extra options are
// appended to the defaults.
func NewGRPCClassifier(cfg *config.Config, logger zerolog.Logger, extra ...grpc.DialOption) (*GRPCClassifier, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Keepalive settings for the long-lived scoring connection
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.WakewordURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create wakeword client for %s: %w", cfg.WakewordURL, err)
	}

	return &GRPCClassifier{
		address: cfg.WakewordURL,
		service: strings.Trim(cfg.WakewordService, "/"),
		timeout: time.Duration(cfg.WakewordTimeout) * time.Millisecond,
		logger:  logger.With().Str("component", "wakeword_client").Logger(),
		conn:    conn,
		circuitBreaker: resilience.NewCircuitBreaker(
			"wakeword",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}, nil
}

// Score returns the per-keyword probability for frame.
func (c *GRPCClassifier) Score(ctx context.Context, frame audio.Frame) (map[string]float64, error) {
	reply := &structpb.Struct{}
	if err := c.invoke(ctx, "Score", wrapperspb.Bytes(frame.Bytes()), reply); err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(reply.GetFields()))
	for keyword, value := range reply.GetFields() {
		if _, ok := value.GetKind().(*structpb.Value_NumberValue); !ok {
			c.logger.Debug().Str("keyword", keyword).Msg("Ignoring non-numeric score")
			continue
		}
		scores[keyword] = value.GetNumberValue()
	}
	return scores, nil
}

// Reset discards the service's buffered audio.
func (c *GRPCClassifier) Reset(ctx context.Context) error {
	return c.invoke(ctx, "Reset", &emptypb.Empty{}, &emptypb.Empty{})
}

func (c *GRPCClassifier) invoke(ctx context.Context, method string, req, reply any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("wakeword client is closed")
	}

	fullMethod := "/" + c.service + "/" + method

	// Open circuit fails fast instead of stalling the listening loop
	err := c.circuitBreaker.Call(func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return conn.Invoke(callCtx, fullMethod, req, reply)
	})

	observability.UpdateCircuitBreakerState("wakeword", int(c.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("wakeword")
		return fmt.Errorf("failed to call %s: %w", fullMethod, err)
	}
	return nil
}

// HealthCheck queries the standard gRPC health service.
func (c *GRPCClassifier) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("wakeword client is closed")
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: c.service})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("wakeword service at %s is %s", c.address, resp.GetStatus())
	}
	return nil
}

// Close closes the gRPC connection.
func (c *GRPCClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
