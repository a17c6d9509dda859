package kernel

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/danmuck/vkernel/internal/engine"
	"github.com/danmuck/vkernel/internal/protocol"
	"github.com/danmuck/vkernel/internal/session"
	"github.com/danmuck/vkernel/internal/testutil/testlog"
)

var testKey = []byte("kernel-test-key")

// recorder captures the cross-socket send order.
type recorder struct {
	mu     sync.Mutex
	labels []string
}

func (r *recorder) add(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, label)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

// fakeSocket is an in-memory channel double.
type fakeSocket struct {
	name string
	rec  *recorder
	in   chan zmq4.Msg

	mu   sync.Mutex
	sent []zmq4.Msg
}

func newFakeSocket(name string, rec *recorder) *fakeSocket {
	return &fakeSocket{name: name, rec: rec, in: make(chan zmq4.Msg, 16)}
}

func (f *fakeSocket) Recv() (zmq4.Msg, error) {
	msg, ok := <-f.in
	if !ok {
		return zmq4.Msg{}, errors.New("socket closed")
	}
	return msg, nil
}

func (f *fakeSocket) Send(msg zmq4.Msg) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.rec != nil {
		f.rec.add(f.name + "/" + sendLabel(msg))
	}
	return nil
}

func (f *fakeSocket) Close() error { return nil }

func (f *fakeSocket) sentMessages(t *testing.T) []*protocol.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*protocol.Message, 0, len(f.sent))
	for _, raw := range f.sent {
		msg, err := protocol.Decode(raw.Frames, testKey)
		if err != nil {
			t.Fatalf("decode sent frames: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func sendLabel(raw zmq4.Msg) string {
	msg, err := protocol.Decode(raw.Frames, testKey)
	if err != nil {
		return "raw"
	}
	label := msg.Header.MsgType
	if label == protocol.MsgStatus {
		if state, ok := msg.Content["execution_state"].(string); ok {
			label += ":" + state
		}
	}
	return label
}

// scriptedRunner fakes the compiler boundary.
type scriptedRunner struct {
	stdout   string
	stderr   string
	exitCode int32
	err      error
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	return []byte(r.stdout), []byte(r.stderr), r.exitCode, r.err
}

type testHarness struct {
	svc     *Service
	rec     *recorder
	shell   *fakeSocket
	control *fakeSocket
	iopub   *fakeSocket
	hb      *fakeSocket
}

func newTestService(t *testing.T, runner engine.CommandRunner) *testHarness {
	t.Helper()
	testlog.Start(t)

	sess, err := session.New(t.TempDir())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })

	rec := &recorder{}
	h := &testHarness{
		rec:     rec,
		shell:   newFakeSocket("shell", rec),
		control: newFakeSocket("control", rec),
		iopub:   newFakeSocket("iopub", rec),
		hb:      newFakeSocket("hb", rec),
	}
	h.svc = &Service{
		key:       testKey,
		sessionID: "kernel-session",
		sess:      sess,
		eng:       engine.New(sess, runner, engine.Config{}),
		shell:     h.shell,
		control:   h.control,
		heartbeat: h.hb,
		iopub:     NewPublisher(h.iopub, testKey, "kernel-session"),
	}
	return h
}

func executeRequest(code string, silent bool) *protocol.Message {
	return &protocol.Message{
		Identities: [][]byte{[]byte("front-end")},
		Header:     protocol.NewHeader(protocol.MsgExecuteRequest, "fe-session"),
		Content:    map[string]any{"code": code, "silent": silent},
	}
}

func request(msgType string) *protocol.Message {
	return &protocol.Message{
		Identities: [][]byte{[]byte("front-end")},
		Header:     protocol.NewHeader(msgType, "fe-session"),
		Content:    map[string]any{},
	}
}

func encodeFrames(t *testing.T, msg *protocol.Message) zmq4.Msg {
	t.Helper()
	frames, err := protocol.Encode(msg, testKey)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	return zmq4.NewMsgFrom(frames...)
}

func assertLabels(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("event mismatch:\n got=%v\nwant=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d mismatch:\n got=%v\nwant=%v", i, got, want)
		}
	}
}

func TestExecuteSuccessOrdering(t *testing.T) {
	h := newTestService(t, &scriptedRunner{stdout: "20\n"})

	h.svc.handleExecute(context.Background(), executeRequest("println(x * 2)", false))

	assertLabels(t, h.rec.snapshot(), []string{
		"iopub/status:busy",
		"iopub/execute_input",
		"iopub/stream",
		"iopub/status:idle",
		"shell/execute_reply",
	})

	replies := h.shell.sentMessages(t)
	if len(replies) != 1 {
		t.Fatalf("expected one shell reply, got %d", len(replies))
	}
	if got := replies[0].Content["status"]; got != "ok" {
		t.Fatalf("reply status: %v", got)
	}
	if got := replies[0].Content["execution_count"]; got != float64(1) {
		t.Fatalf("execution_count: %v", got)
	}

	broadcasts := h.iopub.sentMessages(t)
	stream := broadcasts[2]
	if stream.Content["name"] != "stdout" || stream.Content["text"] != "20\n" {
		t.Fatalf("stream content: %+v", stream.Content)
	}
	// Every broadcast caused by the request carries its header as parent.
	req0 := broadcasts[0]
	if req0.ParentHeader.MsgType != protocol.MsgExecuteRequest {
		t.Fatalf("busy status parent: %+v", req0.ParentHeader)
	}
}

func TestExecuteErrorOrderingAndRecovery(t *testing.T) {
	failing := &scriptedRunner{
		stderr:   "cell_1.v:4:1: error: unexpected token\n",
		exitCode: 1,
		err:      errors.New("exit status 1"),
	}
	h := newTestService(t, failing)

	h.svc.handleExecute(context.Background(), executeRequest("fn oops( {", false))

	assertLabels(t, h.rec.snapshot(), []string{
		"iopub/status:busy",
		"iopub/execute_input",
		"iopub/stream",
		"iopub/error",
		"iopub/status:idle",
		"shell/execute_reply",
	})

	replies := h.shell.sentMessages(t)
	if got := replies[0].Content["status"]; got != "error" {
		t.Fatalf("reply status: %v", got)
	}
	if got := replies[0].Content["ename"]; got != "CompileError" {
		t.Fatalf("reply ename: %v", got)
	}

	// The kernel is not poisoned: a following valid cell still executes.
	failing.stderr, failing.exitCode, failing.err = "", 0, nil
	failing.stdout = "ok\n"
	h.svc.handleExecute(context.Background(), executeRequest("println('ok')", false))

	replies = h.shell.sentMessages(t)
	last := replies[len(replies)-1]
	if got := last.Content["status"]; got != "ok" {
		t.Fatalf("recovery reply status: %v", got)
	}
	if got := last.Content["execution_count"]; got != float64(2) {
		t.Fatalf("count must advance across failures, got %v", got)
	}
}

func TestSilentExecuteSuppressesIOPub(t *testing.T) {
	h := newTestService(t, &scriptedRunner{stdout: "quiet\n"})

	h.svc.handleExecute(context.Background(), executeRequest("println('quiet')", true))

	if broadcasts := h.iopub.sentMessages(t); len(broadcasts) != 0 {
		t.Fatalf("silent execute must not publish on iopub, got %d messages", len(broadcasts))
	}
	if replies := h.shell.sentMessages(t); len(replies) != 1 {
		t.Fatalf("silent execute still gets a shell reply")
	}
}

func TestKernelInfoReply(t *testing.T) {
	h := newTestService(t, &scriptedRunner{})

	h.svc.dispatchShell(context.Background(), request(protocol.MsgKernelInfoRequest))

	replies := h.shell.sentMessages(t)
	if len(replies) != 1 || replies[0].Header.MsgType != protocol.MsgKernelInfoReply {
		t.Fatalf("expected kernel_info_reply, got %+v", replies)
	}
	if got := replies[0].Content["protocol_version"]; got != protocol.Version {
		t.Fatalf("protocol_version: %v", got)
	}
	info, ok := replies[0].Content["language_info"].(map[string]any)
	if !ok || info["name"] != "v" {
		t.Fatalf("language_info: %+v", replies[0].Content)
	}
}

func TestAuxiliaryShellReplies(t *testing.T) {
	cases := []struct {
		request string
		reply   string
	}{
		{protocol.MsgIsCompleteRequest, protocol.MsgIsCompleteReply},
		{protocol.MsgCommInfoRequest, protocol.MsgCommInfoReply},
		{protocol.MsgHistoryRequest, protocol.MsgHistoryReply},
	}
	for _, tc := range cases {
		h := newTestService(t, &scriptedRunner{})
		h.svc.dispatchShell(context.Background(), request(tc.request))
		replies := h.shell.sentMessages(t)
		if len(replies) != 1 || replies[0].Header.MsgType != tc.reply {
			t.Fatalf("%s: expected %s, got %+v", tc.request, tc.reply, replies)
		}
	}
}

func TestUnknownShellMessageGetsNoReply(t *testing.T) {
	h := newTestService(t, &scriptedRunner{})
	h.svc.dispatchShell(context.Background(), request("inspect_request"))
	h.svc.dispatchShell(context.Background(), request("comm_open"))
	if replies := h.shell.sentMessages(t); len(replies) != 0 {
		t.Fatalf("expected no replies, got %+v", replies)
	}
}

func TestUndecodableShellMessageProducesNoReply(t *testing.T) {
	h := newTestService(t, &scriptedRunner{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.svc.serveShell(ctx) }()

	// Tampered signature: silently dropped, no reply on any channel.
	tampered := encodeFrames(t, request(protocol.MsgKernelInfoRequest))
	tampered.Frames[2][0] ^= 0xff
	h.shell.in <- tampered
	// A healthy request afterwards is still served.
	h.shell.in <- encodeFrames(t, request(protocol.MsgKernelInfoRequest))

	waitFor(t, func() bool { return len(h.shell.sentMessages(t)) == 1 })
	replies := h.shell.sentMessages(t)
	if replies[0].Header.MsgType != protocol.MsgKernelInfoReply {
		t.Fatalf("unexpected reply: %+v", replies[0].Header)
	}

	cancel()
	close(h.shell.in)
	if err := <-done; err != nil {
		t.Fatalf("serveShell: %v", err)
	}
}

func TestShutdownFromControlRepliesThenStops(t *testing.T) {
	h := newTestService(t, &scriptedRunner{})
	ctx, cancel := context.WithCancel(context.Background())
	h.svc.cancel = cancel

	done := make(chan error, 1)
	go func() { done <- h.svc.serveControl(ctx) }()

	req := request(protocol.MsgShutdownRequest)
	req.Content["restart"] = false
	h.control.in <- encodeFrames(t, req)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("shutdown did not cancel the run context")
	}

	replies := h.control.sentMessages(t)
	if len(replies) != 1 || replies[0].Header.MsgType != protocol.MsgShutdownReply {
		t.Fatalf("expected shutdown_reply, got %+v", replies)
	}
	if got := replies[0].Content["status"]; got != "ok" {
		t.Fatalf("shutdown status: %v", got)
	}

	close(h.control.in)
	if err := <-done; err != nil {
		t.Fatalf("serveControl: %v", err)
	}
}

func TestInterruptAcknowledgedWithoutStopping(t *testing.T) {
	h := newTestService(t, &scriptedRunner{})
	ctx, cancel := context.WithCancel(context.Background())
	h.svc.cancel = cancel

	h.svc.handleInterrupt(request(protocol.MsgInterruptRequest))

	replies := h.control.sentMessages(t)
	if len(replies) != 1 || replies[0].Header.MsgType != protocol.MsgInterruptReply {
		t.Fatalf("expected interrupt_reply, got %+v", replies)
	}
	if ctx.Err() != nil {
		t.Fatalf("interrupt must not stop the kernel")
	}
	cancel()
}

func TestHeartbeatEchoesWhileExecuteInFlight(t *testing.T) {
	block := make(chan struct{})
	h := newTestService(t, &blockingRunner{release: block})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hbDone := make(chan error, 1)
	go func() { hbDone <- h.svc.serveHeartbeat(ctx) }()

	execDone := make(chan struct{})
	go func() {
		h.svc.handleExecute(ctx, executeRequest("slow()", false))
		close(execDone)
	}()

	probe := zmq4.NewMsgFrom([]byte{0xde, 0xad, 0xbe, 0xef})
	h.hb.in <- probe

	waitFor(t, func() bool {
		h.hb.mu.Lock()
		defer h.hb.mu.Unlock()
		return len(h.hb.sent) == 1
	})
	h.hb.mu.Lock()
	echoed := h.hb.sent[0]
	h.hb.mu.Unlock()
	if !bytes.Equal(echoed.Frames[0], []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("heartbeat must echo bytes verbatim, got %x", echoed.Frames[0])
	}

	close(block)
	<-execDone
	cancel()
	close(h.hb.in)
	if err := <-hbDone; err != nil {
		t.Fatalf("serveHeartbeat: %v", err)
	}
}

type blockingRunner struct {
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return []byte("done\n"), nil, 0, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
