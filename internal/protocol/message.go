package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Version is the Jupyter messaging protocol version this kernel speaks.
const Version = "5.3"

// Shell/control request and reply message types.
const (
	MsgKernelInfoRequest = "kernel_info_request"
	MsgKernelInfoReply   = "kernel_info_reply"
	MsgExecuteRequest    = "execute_request"
	MsgExecuteReply      = "execute_reply"
	MsgShutdownRequest   = "shutdown_request"
	MsgShutdownReply     = "shutdown_reply"
	MsgInterruptRequest  = "interrupt_request"
	MsgInterruptReply    = "interrupt_reply"
	MsgIsCompleteRequest = "is_complete_request"
	MsgIsCompleteReply   = "is_complete_reply"
	MsgCommInfoRequest   = "comm_info_request"
	MsgCommInfoReply     = "comm_info_reply"
	MsgHistoryRequest    = "history_request"
	MsgHistoryReply      = "history_reply"
)

// IOPub broadcast message types.
const (
	MsgStatus        = "status"
	MsgStream        = "stream"
	MsgExecuteInput  = "execute_input"
	MsgExecuteResult = "execute_result"
	MsgError         = "error"
)

// Header identifies one protocol message. All fields use omitempty so the
// zero Header renders as {}, which is what an empty parent_header must be
// on the wire.
type Header struct {
	MsgID    string `json:"msg_id,omitempty"`
	Session  string `json:"session,omitempty"`
	Username string `json:"username,omitempty"`
	Date     string `json:"date,omitempty"`
	MsgType  string `json:"msg_type,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Message is one unit of protocol exchange as carried on a channel.
type Message struct {
	Identities   [][]byte
	Header       Header
	ParentHeader Header
	Metadata     map[string]any
	Content      map[string]any
	Buffers      [][]byte
}

// NewHeader builds a fresh header for an outbound message.
func NewHeader(msgType, sessionID string) Header {
	return Header{
		MsgID:    uuid.NewString(),
		Session:  sessionID,
		Username: "vkernel",
		Date:     time.Now().UTC().Format(time.RFC3339),
		MsgType:  msgType,
		Version:  Version,
	}
}

// Reply builds a response to req on the same routing identities. The
// parent_header is a copy of the triggering request's header.
func Reply(req *Message, msgType, sessionID string, content map[string]any) *Message {
	return &Message{
		Identities:   cloneFrames(req.Identities),
		Header:       NewHeader(msgType, sessionID),
		ParentHeader: req.Header,
		Metadata:     map[string]any{},
		Content:      content,
	}
}

// Broadcast builds an iopub message. Identities stay empty; PUB sockets do
// not route. A nil parent yields an empty parent_header, which is the shape
// of unsolicited startup and shutdown broadcasts.
func Broadcast(parent *Message, msgType, sessionID string, content map[string]any) *Message {
	msg := &Message{
		Header:   NewHeader(msgType, sessionID),
		Metadata: map[string]any{},
		Content:  content,
	}
	if parent != nil {
		msg.ParentHeader = parent.Header
	}
	return msg
}

func cloneFrames(in [][]byte) [][]byte {
	if len(in) == 0 {
		return nil
	}
	out := make([][]byte, len(in))
	for i, frame := range in {
		out[i] = make([]byte, len(frame))
		copy(out[i], frame)
	}
	return out
}
