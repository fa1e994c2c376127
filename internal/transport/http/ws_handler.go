package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/config"
	"github.com/vovakirdan/chatsync/internal/core"
	"github.com/vovakirdan/chatsync/internal/metrics"
	"github.com/vovakirdan/chatsync/internal/proto"
)

var (
	errIdentifyFailed = errors.New("identify failed")
	errClosedByServer = errors.New("connection closed by server")
)

// WSHandler upgrades HTTP connections and bridges them to core.Connection.
type WSHandler struct {
	hub     *core.Hub
	cfg     config.Config
	metrics *metrics.Recorder
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg config.Config, rec *metrics.Recorder, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, cfg: cfg, metrics: rec, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: h.cfg.AllowedOrigins}
	if len(h.cfg.AllowedOrigins) == 0 {
		opts.InsecureSkipVerify = true
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer ws.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	conn := h.hub.NewConnection()
	defer h.hub.Disconnect(conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, ws, conn)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, ws, conn)
	}()

	err = <-errCh
	cancel()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, errIdentifyFailed):
		status, reason = websocket.StatusPolicyViolation, "identify failed"
	case errors.Is(err, errClosedByServer):
		status, reason = websocket.StatusGoingAway, err.Error()
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Uint64("conn_id", conn.ID()).Msg("ws connection closed with error")
		}
	}

	ws.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, ws *websocket.Conn, conn *core.Connection) error {
	limiter := newRateLimiter(h.cfg.RateLimitRPS, h.cfg.RateLimitBurst)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Uint64("conn_id", conn.ID()).Msg("read ws inbound")
			return err
		}

		var inbound proto.Inbound
		decodeErr := json.Unmarshal(data, &inbound)

		if conn.State() == core.StateConnecting {
			if decodeErr != nil {
				return h.failIdentify(ctx, ws, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed frame"})
			}
			if err := h.identify(ctx, ws, conn, inbound); err != nil {
				return err
			}
			continue
		}

		// Undecodable frames are dropped; only transport errors end the loop.
		if decodeErr != nil {
			h.metrics.Rejected(core.ErrCodeBadRequest)
			h.log.Debug().Err(decodeErr).Uint64("conn_id", conn.ID()).Msg("malformed frame dropped")
			conn.Send(&core.Event{Kind: core.EventError, Error: core.NewValidationError("malformed frame")})
			continue
		}

		if !allow(limiter) {
			h.metrics.Rejected(core.ErrCodeRateLimited)
			conn.Send(&core.Event{Kind: core.EventError, Error: core.NewRateLimitedError()})
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			h.metrics.Rejected(protoErr.Code)
			h.log.Debug().Str("code", protoErr.Code).Str("type", inbound.Type).Uint64("conn_id", conn.ID()).Msg("inbound dropped")
			conn.Send(&core.Event{Kind: core.EventError, Error: &core.CoreError{Code: protoErr.Code, Message: protoErr.Msg}})
			continue
		}
		// Errors are already reported to this connection by the hub.
		_ = h.hub.Handle(ctx, conn, cmd)
	}
}

// identify runs the handshake. Any failure is written directly and ends the
// connection without a registry entry.
func (h *WSHandler) identify(ctx context.Context, ws *websocket.Conn, conn *core.Connection, inbound proto.Inbound) error {
	if inbound.Type != proto.InboundTypeJoinRoom {
		return h.failIdentify(ctx, ws, &proto.Error{Code: core.ErrCodeUnauthenticated, Msg: "identify first"})
	}
	cmd, protoErr := inboundToCommand(inbound)
	if protoErr != nil {
		return h.failIdentify(ctx, ws, protoErr)
	}
	if _, err := h.hub.Identify(ctx, conn, cmd.UserID, cmd.Token); err != nil {
		ce := core.AsCoreError(err)
		return h.failIdentify(ctx, ws, &proto.Error{Code: ce.Code, Msg: ce.Message})
	}
	return nil
}

// failIdentify writes pe and reports errIdentifyFailed.
func (h *WSHandler) failIdentify(ctx context.Context, ws *websocket.Conn, pe *proto.Error) error {
	h.metrics.Rejected(pe.Code)
	h.log.Info().Str("code", pe.Code).Str("reason", pe.Msg).Msg("identify rejected")
	if err := wsjson.Write(ctx, ws, proto.Outbound{Type: proto.OutboundTypeError, Error: pe}); err != nil {
		return err
	}
	return errIdentifyFailed
}

func (h *WSHandler) writeLoop(ctx context.Context, ws *websocket.Conn, conn *core.Connection) error {
	for {
		select {
		case event := <-conn.Events():
			if err := wsjson.Write(ctx, ws, outboundFromEvent(event)); err != nil {
				h.log.Debug().Err(err).Uint64("conn_id", conn.ID()).Msg("write ws event")
				return err
			}
		case <-conn.Done():
			return errClosedByServer
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
