// Package network serves conversions over ZeroMQ.
//
// This package implements:
//   - ZmqNode: ROUTER socket serving conversion requests
//   - ZmqClient: DEALER socket sending requests and matching replies
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/VanDung-dev/root2avro/bridge"
	"github.com/VanDung-dev/root2avro/root2avro-engine/api"
)

// MaxNetworkMessageSize is the largest accepted Arrow frame.
const MaxNetworkMessageSize = api.MaxMessageSize

// Common errors for network operations
var (
	ErrNodeNotRunning = errors.New("node is not running")
	ErrBadRequest     = errors.New("malformed request")
	ErrReplay         = errors.New("request replayed or expired")
	ErrSendFailed     = errors.New("failed to send message")
)

// Request is the header frame of a conversion request. The Arrow IPC
// payload travels in the following frame.
type Request struct {
	ID        string          `json:"id"`
	Token     string          `json:"token,omitempty"`
	Options   *bridge.Options `json:"options,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecodeRequest parses and checks a header frame.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if req.ID == "" {
		return nil, fmt.Errorf("%w: missing request id", ErrBadRequest)
	}
	return &req, nil
}

// NodeConfig holds ZmqNode settings.
type NodeConfig struct {
	Workers         int
	QueueSize       int
	RequestTimeout  time.Duration
	ReplayTolerance time.Duration
}

// DefaultNodeConfig returns the default node settings.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Workers:         4,
		QueueSize:       1000,
		RequestTimeout:  time.Minute,
		ReplayTolerance: 60 * time.Second,
	}
}

type job struct {
	identity []byte
	header   []byte
	data     []byte
}

// ZmqNode is a ZeroMQ conversion server. Replies are [id, status, payload].
type ZmqNode struct {
	nodeID  string
	address string
	config  NodeConfig

	ctx    context.Context
	cancel context.CancelFunc

	router zmq4.Socket
	sendMu sync.Mutex

	handler *api.ConversionHandler
	metrics *api.Metrics
	log     logrus.FieldLogger

	jobs chan job

	// Replay protection
	replayCache   map[string]time.Time
	replayCacheMu sync.Mutex

	served  int64
	failed  int64
	dropped int64
	statsMu sync.Mutex

	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewZmqNode creates a node listening on host:port. metrics may be nil.
func NewZmqNode(nodeID, host string, port int, config NodeConfig, handler *api.ConversionHandler, metrics *api.Metrics, log logrus.FieldLogger) *ZmqNode {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ZmqNode{
		nodeID:      nodeID,
		address:     fmt.Sprintf("tcp://%s:%d", host, port),
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
		handler:     handler,
		metrics:     metrics,
		log:         log.WithField("node", nodeID),
		jobs:        make(chan job, config.QueueSize),
		replayCache: make(map[string]time.Time),
	}
}

// Start binds the ROUTER socket and starts serving.
func (n *ZmqNode) Start() error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return errors.New("node already running")
	}

	n.router = zmq4.NewRouter(n.ctx, zmq4.WithID(zmq4.SocketIdentity(n.nodeID)))
	if err := n.router.Listen(n.address); err != nil {
		n.mu.Unlock()
		return fmt.Errorf("failed to bind router: %w", err)
	}
	if addr := n.router.Addr(); addr != nil {
		n.address = "tcp://" + addr.String()
	}

	n.running = true
	n.mu.Unlock()

	n.wg.Add(1)
	go n.receiverLoop()

	for i := 0; i < n.config.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}

	n.wg.Add(1)
	go n.replayCacheCleaner()

	n.log.WithField("address", n.address).Info("ZeroMQ node listening")
	return nil
}

// Stop shuts the node down and waits for in-flight requests.
func (n *ZmqNode) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	n.mu.Unlock()

	n.cancel()
	if n.router != nil {
		_ = n.router.Close()
	}
	n.wg.Wait()
}

// Address returns the bound endpoint, with the real port once started.
func (n *ZmqNode) Address() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.address
}

// Addr returns the listener address, or nil before Start.
func (n *ZmqNode) Addr() net.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.router == nil {
		return nil
	}
	return n.router.Addr()
}

// receiverLoop reads requests from the ROUTER socket.
func (n *ZmqNode) receiverLoop() {
	defer n.wg.Done()

	for {
		msg, err := n.router.Recv()
		if err != nil {
			select {
			case <-n.ctx.Done():
				return
			default:
				continue
			}
		}

		if len(msg.Frames) < 2 {
			continue
		}
		j := job{identity: msg.Frames[0], header: msg.Frames[1]}
		if len(msg.Frames) > 2 {
			j.data = msg.Frames[2]
		}

		if len(j.data) > MaxNetworkMessageSize {
			n.reply(j.identity, "", api.StatusError, []byte(api.ErrMessageTooLarge.Error()))
			continue
		}

		select {
		case n.jobs <- j:
		case <-n.ctx.Done():
			return
		default:
			n.statsMu.Lock()
			n.dropped++
			n.statsMu.Unlock()
			n.reply(j.identity, "", api.StatusError, []byte("server busy"))
		}
	}
}

func (n *ZmqNode) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		case j := <-n.jobs:
			n.serve(j)
		}
	}
}

func (n *ZmqNode) serve(j job) {
	start := time.Now()

	req, err := DecodeRequest(j.header)
	if err == nil && !n.isValidReplay(req) {
		err = ErrReplay
	}
	var out []byte
	if err == nil {
		ctx, cancel := n.requestContext()
		out, _, err = n.handler.HandleRequest(ctx, req.Token, req.Options, j.data)
		cancel()
	}

	id := ""
	if req != nil {
		id = req.ID
	}
	if n.metrics != nil {
		n.metrics.RecordRequest("zmq", len(j.data), err, time.Since(start))
	}

	n.statsMu.Lock()
	if err != nil {
		n.failed++
	} else {
		n.served++
	}
	n.statsMu.Unlock()

	if err != nil {
		n.log.WithError(err).WithField("request", id).Warn("Request failed")
		n.reply(j.identity, id, api.StatusError, []byte(err.Error()))
		return
	}
	n.reply(j.identity, id, api.StatusOK, out)
}

func (n *ZmqNode) reply(identity []byte, id string, status byte, payload []byte) {
	msg := zmq4.NewMsgFrom(identity, []byte(id), []byte{status}, payload)

	n.sendMu.Lock()
	err := n.router.Send(msg)
	n.sendMu.Unlock()
	if err != nil {
		n.log.WithError(err).WithField("request", id).Warn("Failed to send reply")
	}
}

func (n *ZmqNode) requestContext() (context.Context, context.CancelFunc) {
	if n.config.RequestTimeout > 0 {
		return context.WithTimeout(n.ctx, n.config.RequestTimeout)
	}
	return context.WithCancel(n.ctx)
}

// isValidReplay rejects reused request ids and stale timestamps.
func (n *ZmqNode) isValidReplay(req *Request) bool {
	n.replayCacheMu.Lock()
	defer n.replayCacheMu.Unlock()

	if _, seen := n.replayCache[req.ID]; seen {
		return false
	}
	if n.config.ReplayTolerance > 0 && time.Since(req.Timestamp) > n.config.ReplayTolerance {
		return false
	}

	n.replayCache[req.ID] = time.Now()
	return true
}

// replayCacheCleaner periodically cleans old entries from replay cache.
func (n *ZmqNode) replayCacheCleaner() {
	defer n.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.cleanReplayCache()
		}
	}
}

func (n *ZmqNode) cleanReplayCache() {
	n.replayCacheMu.Lock()
	defer n.replayCacheMu.Unlock()

	cutoff := time.Now().Add(-n.config.ReplayTolerance)
	for id, ts := range n.replayCache {
		if ts.Before(cutoff) {
			delete(n.replayCache, id)
		}
	}
}

// NodeStats contains node statistics.
type NodeStats struct {
	NodeID    string `json:"node_id"`
	Address   string `json:"address"`
	IsRunning bool   `json:"is_running"`
	QueueSize int    `json:"queue_size"`
	Served    int64  `json:"served"`
	Failed    int64  `json:"failed"`
	Dropped   int64  `json:"dropped"`
}

// GetStats returns current node statistics.
func (n *ZmqNode) GetStats() NodeStats {
	n.mu.RLock()
	stats := NodeStats{
		NodeID:    n.nodeID,
		Address:   n.address,
		IsRunning: n.running,
		QueueSize: len(n.jobs),
	}
	n.mu.RUnlock()

	n.statsMu.Lock()
	stats.Served, stats.Failed, stats.Dropped = n.served, n.failed, n.dropped
	n.statsMu.Unlock()
	return stats
}

// ZmqClient sends conversion requests to a ZmqNode. Calls are serialized.
type ZmqClient struct {
	ctx    context.Context
	cancel context.CancelFunc
	dealer zmq4.Socket
	token  string
	mu     sync.Mutex
}

// DialZmq connects a DEALER socket to address. token is sent with every
// request.
func DialZmq(clientID, address, token string) (*ZmqClient, error) {
	ctx, cancel := context.WithCancel(context.Background())
	dealer := zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity(clientID)))
	if err := dealer.Dial(address); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return &ZmqClient{ctx: ctx, cancel: cancel, dealer: dealer, token: token}, nil
}

// Convert sends Arrow IPC data with the given options and waits for the
// matching reply. opts may be nil for the server defaults.
func (c *ZmqClient) Convert(opts *bridge.Options, ipcData []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := Request{
		ID:        uuid.NewString(),
		Token:     c.token,
		Options:   opts,
		Timestamp: time.Now(),
	}
	header, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := c.dealer.Send(zmq4.NewMsgFrom(header, ipcData)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	for {
		msg, err := c.dealer.Recv()
		if err != nil {
			return nil, err
		}
		if len(msg.Frames) < 3 {
			return nil, api.ErrEmptyResponse
		}
		id := string(msg.Frames[0])
		if id != "" && id != req.ID {
			// Reply to an earlier, abandoned request.
			continue
		}
		frame := make([]byte, 0, 1+len(msg.Frames[2]))
		frame = append(frame, msg.Frames[1]...)
		frame = append(frame, msg.Frames[2]...)
		return api.DecodeResponse(frame)
	}
}

// Close closes the socket.
func (c *ZmqClient) Close() error {
	err := c.dealer.Close()
	c.cancel()
	return err
}
