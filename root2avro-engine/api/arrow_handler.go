package api

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/VanDung-dev/root2avro/bridge"
	"github.com/VanDung-dev/root2avro/root2avro-engine/core"
)

// Control message types. A control message is a JSON object; any other
// message is an Arrow IPC payload to convert.
const (
	ControlAuth    = "auth"
	ControlOptions = "options"
)

// ControlMessage authenticates a connection or changes its conversion
// options.
type ControlMessage struct {
	Type    string          `json:"type"`
	Token   string          `json:"token,omitempty"`
	Options *bridge.Options `json:"options,omitempty"`
}

// ControlResponse answers a control message.
type ControlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Session is the per-connection state.
type Session struct {
	ID            string
	Authenticated bool
	Options       bridge.Options
}

// ConversionHandler serves conversion requests.
type ConversionHandler struct {
	converter *bridge.Converter
	auth      *Authenticator
	metrics   *Metrics
	defaults  bridge.Options
}

// NewConversionHandler creates a handler. auth and metrics may be nil.
func NewConversionHandler(converter *bridge.Converter, auth *Authenticator, metrics *Metrics, defaults bridge.Options) *ConversionHandler {
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{})
	}
	return &ConversionHandler{
		converter: converter,
		auth:      auth,
		metrics:   metrics,
		defaults:  defaults,
	}
}

// NewSession starts the state of a new connection.
func (h *ConversionHandler) NewSession() *Session {
	return &Session{
		ID:            uuid.NewString(),
		Authenticated: !h.auth.IsEnabled(),
		Options:       h.defaults,
	}
}

// IsControl reports whether msg is a control message rather than Arrow data.
func IsControl(msg []byte) bool {
	trimmed := bytes.TrimLeft(msg, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Handle processes one message and returns the response status and payload.
// The returned error is the failure reported in the payload, for logging.
func (h *ConversionHandler) Handle(ctx context.Context, s *Session, msg []byte) (byte, []byte, error) {
	if IsControl(msg) {
		return h.handleControl(s, msg)
	}

	if !s.Authenticated {
		return StatusError, []byte(ErrAuthRequired.Error()), ErrAuthRequired
	}

	out, _, err := h.converter.Convert(ctx, msg, s.Options)
	if err != nil {
		return StatusError, []byte(err.Error()), err
	}
	return StatusOK, out, nil
}

// HandleRequest converts one stateless request, as sent on the ZeroMQ and
// gRPC transports: token and options travel with the data.
func (h *ConversionHandler) HandleRequest(ctx context.Context, token string, opts *bridge.Options, msg []byte) ([]byte, core.Stats, error) {
	if err := h.auth.ValidateToken(token); err != nil {
		if h.metrics != nil {
			h.metrics.AuthFailures.Inc()
		}
		return nil, core.Stats{}, err
	}
	o := h.defaults
	if opts != nil {
		o = h.merge(*opts)
	}
	return h.converter.Convert(ctx, msg, o)
}

func (h *ConversionHandler) handleControl(s *Session, msg []byte) (byte, []byte, error) {
	var ctrl ControlMessage
	if err := json.Unmarshal(msg, &ctrl); err != nil {
		err = fmt.Errorf("invalid control message: %w", err)
		return controlReply(err)
	}

	switch ctrl.Type {
	case ControlAuth:
		if err := h.auth.ValidateToken(ctrl.Token); err != nil {
			if h.metrics != nil {
				h.metrics.AuthFailures.Inc()
			}
			s.Authenticated = false
			return controlReply(err)
		}
		s.Authenticated = true
		return controlReply(nil)
	case ControlOptions:
		if !s.Authenticated {
			return controlReply(ErrAuthRequired)
		}
		if ctrl.Options == nil {
			s.Options = h.defaults
		} else {
			s.Options = h.merge(*ctrl.Options)
		}
		return controlReply(nil)
	default:
		return controlReply(fmt.Errorf("unknown control message type %q", ctrl.Type))
	}
}

// merge fills unset output settings from the handler defaults. Flags
// enabled in the defaults cannot be turned off per request.
func (h *ConversionHandler) merge(o bridge.Options) bridge.Options {
	if o.Mode == "" {
		o.Mode = h.defaults.Mode
	}
	if o.Codec == "" {
		o.Codec = h.defaults.Codec
	}
	if o.Namespace == "" {
		o.Namespace = h.defaults.Namespace
	}
	o.SkipBadRows = o.SkipBadRows || h.defaults.SkipBadRows
	o.KeepLengthBranches = o.KeepLengthBranches || h.defaults.KeepLengthBranches
	return o
}

func controlReply(err error) (byte, []byte, error) {
	resp := ControlResponse{Success: err == nil}
	status := StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = StatusError
	}
	payload, mErr := json.Marshal(resp)
	if mErr != nil {
		return StatusError, []byte(mErr.Error()), mErr
	}
	return status, payload, err
}
