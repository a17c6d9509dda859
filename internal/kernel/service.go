package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/vkernel/internal/connection"
	"github.com/danmuck/vkernel/internal/engine"
	"github.com/danmuck/vkernel/internal/session"
)

// Service runs one kernel process lifetime: five bound channels, one
// session, one engine.
type Service struct {
	info      connection.Info
	key       []byte
	sessionID string

	sess *session.Session
	eng  *engine.Engine

	shell     Socket
	control   Socket
	stdin     Socket
	heartbeat Socket
	iopub     *Publisher

	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewService wires a service from the connection descriptor and kernel
// config. Sockets are bound later, inside Run.
func NewService(info connection.Info, cfg connection.Config) (*Service, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	sess, err := session.New(cfg.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	eng := engine.New(sess, engine.ExecRunner{}, engine.Config{
		Compiler: cfg.Compiler,
		Timeout:  cfg.Timeout(),
	})
	return &Service{
		info:      info,
		key:       []byte(info.Key),
		sessionID: uuid.NewString(),
		sess:      sess,
		eng:       eng,
	}, nil
}

// Run binds the channels and serves until a shutdown request, context
// cancellation, or a fatal socket error. A channel socket failing is fatal:
// the front end detects kernel death through the heartbeat going quiet.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel

	if err := s.bind(ctx); err != nil {
		return err
	}
	defer s.closeAll()

	log.Info().
		Str("session", s.sessionID).
		Str("shell", s.info.Endpoint(s.info.ShellPort)).
		Str("iopub", s.info.Endpoint(s.info.IOPubPort)).
		Msg("kernel listening")

	// Unsolicited startup broadcasts carry an empty parent header.
	s.iopub.Status(nil, StateStarting)
	s.iopub.Status(nil, StateIdle)

	hbErr := make(chan error, 1)
	ctlErr := make(chan error, 1)
	shellErr := make(chan error, 1)
	go func() { hbErr <- s.serveHeartbeat(ctx) }()
	go func() { ctlErr <- s.serveControl(ctx) }()
	go func() { shellErr <- s.serveShell(ctx) }()

	select {
	case <-ctx.Done():
		log.Info().Msg("kernel shutdown")
		return nil
	case err := <-hbErr:
		return err
	case err := <-ctlErr:
		return err
	case err := <-shellErr:
		return err
	}
}

// stop tears down the run context; safe to call from any goroutine.
func (s *Service) stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *Service) bind(ctx context.Context) error {
	shell := zmq4.NewRouter(ctx)
	if err := shell.Listen(s.info.Endpoint(s.info.ShellPort)); err != nil {
		return fmt.Errorf("kernel: shell bind: %w", err)
	}
	s.shell = shell

	control := zmq4.NewRouter(ctx)
	if err := control.Listen(s.info.Endpoint(s.info.ControlPort)); err != nil {
		return fmt.Errorf("kernel: control bind: %w", err)
	}
	s.control = control

	// Bound for protocol compliance; input_request is not supported.
	stdin := zmq4.NewRouter(ctx)
	if err := stdin.Listen(s.info.Endpoint(s.info.StdinPort)); err != nil {
		return fmt.Errorf("kernel: stdin bind: %w", err)
	}
	s.stdin = stdin

	iopub := zmq4.NewPub(ctx)
	if err := iopub.Listen(s.info.Endpoint(s.info.IOPubPort)); err != nil {
		return fmt.Errorf("kernel: iopub bind: %w", err)
	}
	s.iopub = NewPublisher(iopub, s.key, s.sessionID)

	heartbeat := zmq4.NewRep(ctx)
	if err := heartbeat.Listen(s.info.Endpoint(s.info.HBPort)); err != nil {
		return fmt.Errorf("kernel: heartbeat bind: %w", err)
	}
	s.heartbeat = heartbeat

	return nil
}

func (s *Service) closeAll() {
	for _, sock := range []Socket{s.shell, s.control, s.stdin, s.heartbeat} {
		if sock != nil {
			_ = sock.Close()
		}
	}
	if s.iopub != nil && s.iopub.sock != nil {
		_ = s.iopub.sock.Close()
	}
	if err := s.sess.Close(); err != nil {
		log.Warn().Err(err).Msg("session workspace cleanup failed")
	}
}
