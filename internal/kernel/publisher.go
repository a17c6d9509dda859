package kernel

import (
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/vkernel/internal/protocol"
)

// Kernel execution states broadcast on the iopub status channel.
const (
	StateStarting = "starting"
	StateBusy     = "busy"
	StateIdle     = "idle"
)

// Publisher fans broadcasts out on the iopub channel. Fire-and-forget: no
// acknowledgment, no backpressure. The mutex serializes shell and control
// publications.
type Publisher struct {
	mu        sync.Mutex
	sock      Socket
	key       []byte
	sessionID string
}

func NewPublisher(sock Socket, key []byte, sessionID string) *Publisher {
	return &Publisher{sock: sock, key: key, sessionID: sessionID}
}

// Status publishes an execution-state transition. A nil parent marks the
// unsolicited startup/shutdown broadcasts.
func (p *Publisher) Status(parent *protocol.Message, state string) {
	p.publish(protocol.Broadcast(parent, protocol.MsgStatus, p.sessionID, map[string]any{
		"execution_state": state,
	}))
}

// ExecuteInput echoes the submitted code and its execution count.
func (p *Publisher) ExecuteInput(parent *protocol.Message, code string, count int) {
	p.publish(protocol.Broadcast(parent, protocol.MsgExecuteInput, p.sessionID, map[string]any{
		"code":            code,
		"execution_count": count,
	}))
}

// Stream publishes captured stdout or stderr text.
func (p *Publisher) Stream(parent *protocol.Message, name, text string) {
	p.publish(protocol.Broadcast(parent, protocol.MsgStream, p.sessionID, map[string]any{
		"name": name,
		"text": text,
	}))
}

// Error publishes a failed execution for inline front-end display.
func (p *Publisher) Error(parent *protocol.Message, ename, evalue string, traceback []string) {
	if traceback == nil {
		traceback = []string{}
	}
	p.publish(protocol.Broadcast(parent, protocol.MsgError, p.sessionID, map[string]any{
		"ename":     ename,
		"evalue":    evalue,
		"traceback": traceback,
	}))
}

func (p *Publisher) publish(msg *protocol.Message) {
	frames, err := protocol.Encode(msg, p.key)
	if err != nil {
		log.Error().Err(err).Str("msg_type", msg.Header.MsgType).Msg("iopub encode failed")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		log.Error().Err(err).Str("msg_type", msg.Header.MsgType).Msg("iopub send failed")
	}
}
