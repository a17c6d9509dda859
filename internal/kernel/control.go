package kernel

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/vkernel/internal/protocol"
)

// serveControl handles out-of-band requests on its own goroutine so that
// shutdown and interrupt are answered even while the shell loop is blocked
// on a long-running execute.
func (s *Service) serveControl(ctx context.Context) error {
	for {
		raw, err := s.control.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kernel: control recv: %w", err)
		}
		msg, err := protocol.Decode(raw.Frames, s.key)
		if err != nil {
			log.Warn().Err(err).Msg("dropping undecodable control message")
			continue
		}

		switch msg.Header.MsgType {
		case protocol.MsgShutdownRequest:
			s.handleShutdown(s.control, msg)
		case protocol.MsgInterruptRequest:
			s.handleInterrupt(msg)
		default:
			log.Warn().Str("msg_type", msg.Header.MsgType).Msg("unhandled control message")
		}
	}
}

// handleShutdown replies first, then tears the run context down; the reply
// must reach the front end before the sockets go away.
func (s *Service) handleShutdown(sock Socket, req *protocol.Message) {
	restart, _ := req.Content["restart"].(bool)
	s.sendReply(sock, req, protocol.MsgShutdownReply, map[string]any{
		"status":  "ok",
		"restart": restart,
	})
	log.Info().Bool("restart", restart).Msg("shutdown requested")
	s.stop()
}

// handleInterrupt acknowledges the request. Cancellation is not forwarded
// into a running child process; the limitation is logged, never silent.
func (s *Service) handleInterrupt(req *protocol.Message) {
	s.sendReply(s.control, req, protocol.MsgInterruptReply, map[string]any{
		"status": "ok",
	})
	log.Warn().Msg("interrupt acknowledged; in-flight executions run to completion")
}
