package led

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Sim is a Driver with no hardware behind it. It keeps the last frame so
// tests and --sim runs can see what would have been shifted out.
type Sim struct {
	mu     sync.Mutex
	count  int
	last   []byte
	frames int
	closed bool
	log    zerolog.Logger
}

func NewSim(count int, log zerolog.Logger) *Sim {
	return &Sim{count: count, log: log}
}

func (s *Sim) Write(grb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if len(grb) != s.count*3 {
		return fmt.Errorf("grb length %d does not match count %d", len(grb), s.count)
	}
	s.last = append(s.last[:0], grb...)
	s.frames++
	s.log.Debug().Int("frame", s.frames).Hex("first", grb[:3]).Msg("sim frame")
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Last returns a copy of the most recent frame in wire order.
func (s *Sim) Last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...)
}

// Frames returns how many frames were written.
func (s *Sim) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
