package kernel

import "github.com/go-zeromq/zmq4"

// Socket is the channel surface the loops depend on. zmq4 sockets satisfy
// it; tests substitute in-memory doubles.
type Socket interface {
	Recv() (zmq4.Msg, error)
	Send(zmq4.Msg) error
	Close() error
}
