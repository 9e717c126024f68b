package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ServerConfig holds the TCP server configuration.
type ServerConfig struct {
	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration
	// RequestTimeout bounds one conversion.
	RequestTimeout time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		IdleTimeout:    5 * time.Minute,
		RequestTimeout: time.Minute,
	}
}

// ArrowServer is a TCP server converting framed Arrow IPC messages.
type ArrowServer struct {
	config   ServerConfig
	listener net.Listener
	handler  *ConversionHandler
	metrics  *Metrics
	log      logrus.FieldLogger
	running  bool
	mu       sync.Mutex
	quit     chan struct{}
	conns    sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewArrowServer creates a new ArrowServer instance. metrics may be nil.
func NewArrowServer(config ServerConfig, handler *ConversionHandler, metrics *Metrics, log logrus.FieldLogger) *ArrowServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ArrowServer{
		config:  config,
		handler: handler,
		metrics: metrics,
		log:     log.WithField("component", "arrow-server"),
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *ArrowServer) listen(address string) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, fmt.Errorf("server is already running")
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = lis
	s.running = true
	s.log.WithField("address", lis.Addr().String()).Info("Arrow server listening")
	return lis, nil
}

// Start starts the Arrow server on the specified address.
// This method blocks until the server is stopped or fails.
func (s *ArrowServer) Start(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	defer s.Stop()
	s.acceptLoop(lis)
	return nil
}

// StartAsync starts the server in a background goroutine.
func (s *ArrowServer) StartAsync(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	go s.acceptLoop(lis)
	return nil
}

func (s *ArrowServer) acceptLoop(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.WithError(err).Warn("Accept failed")
				continue
			}
		}

		s.conns.Add(1)
		go s.handleConnection(conn)
	}
}

// Addr returns the listening address, or nil before Start.
func (s *ArrowServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the server and cancels conversions in flight.
func (s *ArrowServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	close(s.quit)
	s.cancel()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.log.WithError(err).Debug("Listener close failed")
		}
	}
}

// Wait blocks until every connection handler has returned.
func (s *ArrowServer) Wait() {
	s.conns.Wait()
}

// handleConnection serves one client connection until it closes.
func (s *ArrowServer) handleConnection(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	session := s.handler.NewSession()
	log := s.log.WithFields(logrus.Fields{
		"session": session.ID,
		"remote":  conn.RemoteAddr().String(),
	})
	log.Debug("Connection opened")

	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
		defer s.metrics.ConnectionsActive.Dec()
	}

	// Unblock reads on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.quit:
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	for {
		if s.config.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}
		// Checked after the deadline so a concurrent Stop always wins.
		select {
		case <-s.quit:
			return
		default:
		}

		data, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.WithError(err).Debug("Connection read ended")
			}
			return
		}

		start := time.Now()
		ctx, cancel := s.requestContext()
		status, payload, err := s.handler.Handle(ctx, session, data)
		cancel()

		if s.metrics != nil && !IsControl(data) {
			s.metrics.RecordRequest("tcp", len(data), err, time.Since(start))
		}
		if err != nil {
			log.WithError(err).WithField("bytes", len(data)).Warn("Request failed")
		} else {
			log.WithFields(logrus.Fields{
				"bytes":    len(data),
				"response": len(payload),
				"duration": time.Since(start),
			}).Debug("Request served")
		}

		if err := WriteResponse(conn, status, payload); err != nil {
			log.WithError(err).Warn("Failed to write response")
			return
		}
	}
}

func (s *ArrowServer) requestContext() (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(s.ctx, s.config.RequestTimeout)
	}
	return context.WithCancel(s.ctx)
}
