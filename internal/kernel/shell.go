package kernel

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/vkernel/internal/protocol"
)

// serveShell dispatches shell requests sequentially: one execute blocks the
// next shell request until the child process finishes, but never the
// heartbeat or control goroutines.
func (s *Service) serveShell(ctx context.Context) error {
	for {
		raw, err := s.shell.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kernel: shell recv: %w", err)
		}
		msg, err := protocol.Decode(raw.Frames, s.key)
		if err != nil {
			// Unauthenticated or malformed traffic gets no protocol-visible
			// response on any channel.
			log.Warn().Err(err).Msg("dropping undecodable shell message")
			continue
		}
		s.dispatchShell(ctx, msg)
	}
}

func (s *Service) dispatchShell(ctx context.Context, msg *protocol.Message) {
	log.Debug().Str("msg_type", msg.Header.MsgType).Msg("shell request")

	switch msg.Header.MsgType {
	case protocol.MsgKernelInfoRequest:
		s.sendReply(s.shell, msg, protocol.MsgKernelInfoReply, kernelInfoContent())
	case protocol.MsgExecuteRequest:
		s.handleExecute(ctx, msg)
	case protocol.MsgShutdownRequest:
		s.handleShutdown(s.shell, msg)
	case protocol.MsgIsCompleteRequest:
		s.sendReply(s.shell, msg, protocol.MsgIsCompleteReply, map[string]any{
			"status": "complete",
		})
	case protocol.MsgCommInfoRequest:
		s.sendReply(s.shell, msg, protocol.MsgCommInfoReply, map[string]any{
			"status": "ok",
			"comms":  map[string]any{},
		})
	case protocol.MsgHistoryRequest:
		s.sendReply(s.shell, msg, protocol.MsgHistoryReply, map[string]any{
			"status":  "ok",
			"history": []any{},
		})
	default:
		if strings.HasPrefix(msg.Header.MsgType, "comm_") {
			log.Debug().Str("msg_type", msg.Header.MsgType).Msg("ignoring comm message")
			return
		}
		log.Warn().Str("msg_type", msg.Header.MsgType).Msg("unhandled shell message")
	}
}

// handleExecute runs one cell. The iopub sequence is fixed by contract:
// status(busy), execute_input, streams/error, status(idle) — and only then
// the shell reply, so front ends never see idle before outputs.
func (s *Service) handleExecute(ctx context.Context, req *protocol.Message) {
	code, _ := req.Content["code"].(string)
	silent, _ := req.Content["silent"].(bool)

	count := s.sess.NextExecutionCount()
	if !silent {
		s.iopub.Status(req, StateBusy)
		s.iopub.ExecuteInput(req, code, count)
	}

	out := s.eng.Execute(ctx, code, count)

	if !silent {
		if out.Stdout != "" {
			s.iopub.Stream(req, "stdout", out.Stdout)
		}
		if out.Failed() {
			if evalue := out.Evalue(); evalue != "" {
				s.iopub.Stream(req, "stderr", evalue)
			}
			s.iopub.Error(req, out.Ename(), out.Evalue(), out.Traceback())
		} else if out.Stderr != "" {
			s.iopub.Stream(req, "stderr", out.Stderr)
		}
		s.iopub.Status(req, StateIdle)
	}

	content := map[string]any{
		"execution_count": count,
	}
	if out.Failed() {
		content["status"] = "error"
		content["ename"] = out.Ename()
		content["evalue"] = out.Evalue()
		content["traceback"] = out.Traceback()
	} else {
		content["status"] = "ok"
		content["payload"] = []any{}
		content["user_expressions"] = map[string]any{}
	}
	s.sendReply(s.shell, req, protocol.MsgExecuteReply, content)
}

func (s *Service) sendReply(sock Socket, req *protocol.Message, msgType string, content map[string]any) {
	reply := protocol.Reply(req, msgType, s.sessionID, content)
	frames, err := protocol.Encode(reply, s.key)
	if err != nil {
		log.Error().Err(err).Str("msg_type", msgType).Msg("reply encode failed")
		return
	}
	if err := sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		log.Error().Err(err).Str("msg_type", msgType).Msg("reply send failed")
	}
}
