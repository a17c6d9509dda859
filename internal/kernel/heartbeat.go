package kernel

import (
	"context"
	"fmt"
)

// serveHeartbeat echoes whatever bytes arrive, verbatim, with no parsing
// and no authentication. It runs on its own goroutine so liveness probes
// keep answering while a compile/run cycle blocks the shell loop.
func (s *Service) serveHeartbeat(ctx context.Context) error {
	for {
		msg, err := s.heartbeat.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kernel: heartbeat recv: %w", err)
		}
		if err := s.heartbeat.Send(msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kernel: heartbeat send: %w", err)
		}
	}
}
