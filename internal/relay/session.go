package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/resend/internal/audit"
	"github.com/rickgao/resend/internal/connection"
	"github.com/rickgao/resend/internal/envelope"
)

// session is the receive loop of one connection.
type session struct {
	relay  *Relay
	id     uuid.UUID
	conn   *connection.Conn
	logger *slog.Logger
	frames int64
}

// serve registers conn, runs its session and tears it down. The connection
// is removed from the registry exactly once, whichever way the session ends.
func (r *Relay) serve(ctx context.Context, conn *connection.Conn) CloseReason {
	id := r.registry.Add(conn)
	r.metrics.ConnectionsTotal.Inc()
	r.metrics.ActiveConnections.Set(float64(r.registry.Len()))

	s := &session{
		relay:  r,
		id:     id,
		conn:   conn,
		logger: r.logger.With("conn_id", id, "remote_addr", conn.RemoteAddr()),
	}

	r.sessionLog(s.logger, "client connected")
	r.audit.Record(audit.Event{
		ConnID:     id,
		Type:       audit.EventOpen,
		RemoteAddr: conn.RemoteAddr(),
		At:         time.Now(),
	})

	// Shutdown cancels ctx before closing registered connections, so a
	// connection added after that sweep sees ctx done here.
	var reason CloseReason
	if ctx.Err() != nil {
		reason = ReasonShutdown
	} else {
		reason = s.run(ctx)
	}

	r.registry.Remove(id)
	r.metrics.ActiveConnections.Set(float64(r.registry.Len()))
	if err := conn.Close(closeCode(reason), closeText(reason)); err != nil {
		s.logger.Debug("close connection", "error", err)
	}

	r.metrics.SessionsClosed.WithLabelValues(string(reason)).Inc()
	r.sessionLog(s.logger, "client disconnected", "reason", reason, "frames", s.frames)
	r.audit.Record(audit.Event{
		ConnID:     id,
		Type:       audit.EventClose,
		RemoteAddr: conn.RemoteAddr(),
		Reason:     string(reason),
		Frames:     s.frames,
		At:         time.Now(),
	})

	return reason
}

// run processes frames in receipt order until the session must end. Each
// frame's broadcast completes before the next frame is read.
func (s *session) run(ctx context.Context) CloseReason {
	for {
		frame, err := s.conn.Receive()
		if err != nil {
			switch {
			case errors.Is(err, connection.ErrPeerClosed):
				return ReasonPeerClosed
			case errors.Is(err, connection.ErrFrameTooLarge):
				// An oversized frame cannot be an envelope. The sender has
				// already been sent 1009, so only the others see the error.
				s.relay.metrics.MalformedFrames.Inc()
				s.logger.Debug("oversized frame", "error", err)
				s.relay.NotifyError(ctx)
				return ReasonMalformed
			case ctx.Err() != nil:
				return ReasonShutdown
			default:
				s.logger.Debug("receive failed", "error", err)
				return ReasonTransport
			}
		}

		s.frames++
		s.relay.metrics.FramesReceived.Inc()

		env, err := envelope.Decode(frame)
		if err != nil {
			s.relay.metrics.MalformedFrames.Inc()
			s.logger.Debug("malformed frame", "error", err, "bytes", len(frame))

			// The sender is still open here, so it receives the error too.
			s.relay.NotifyError(ctx)
			s.conn.Fail()
			return ReasonMalformed
		}

		if _, err := s.relay.Dispatch(ctx, env); err != nil {
			s.logger.Error("dispatch failed", "route", env.Route, "error", err)
			s.conn.Fail()
			return ReasonHandlerFault
		}
	}
}

// sessionLog logs per-session events at info level when session logs are
// enabled, and at debug level otherwise.
func (r *Relay) sessionLog(logger *slog.Logger, msg string, args ...any) {
	level := slog.LevelDebug
	if r.cfg.SessionLogs {
		level = slog.LevelInfo
	}
	logger.Log(context.Background(), level, msg, args...)
}

// closeCode maps a close reason to the WebSocket close code sent to the peer.
func closeCode(reason CloseReason) int {
	switch reason {
	case ReasonPeerClosed:
		return websocket.CloseNormalClosure
	case ReasonMalformed:
		return websocket.CloseInvalidFramePayloadData
	case ReasonHandlerFault:
		return websocket.CloseInternalServerErr
	default:
		return websocket.CloseGoingAway
	}
}

func closeText(reason CloseReason) string {
	switch reason {
	case ReasonMalformed:
		return envelope.ErrorMessage
	case ReasonHandlerFault:
		return "handler error"
	case ReasonShutdown:
		return "server shutting down"
	default:
		return ""
	}
}
