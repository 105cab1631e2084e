package led

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// DefaultSpeed clocks three SPI bits per WS2812 bit at the 800 kHz data rate.
const DefaultSpeed = 2400 * physic.KiloHertz

// DefaultResetUs is the low time that latches a frame.
const DefaultResetUs = 300

var errClosed = errors.New("led: spi closed")

// SPI drives a WS2812 chain from the MOSI line of an SPI port.
type SPI struct {
	mu    sync.Mutex
	conn  spi.Conn
	port  spi.Port
	count int
	tail  int

	// Precomputed LUT: byte -> 24-bit encoded (3 bytes) using 0b100 (0) / 0b110 (1)
	lut [256][3]byte
	enc []byte
}

// NewSPI connects to port and prepares an encoder for count LEDs.
// speed in the 2.4–3.2 MHz range works with the 3x expand scheme; resetUs is
// the latch time (>= 50µs, 300µs is safe for newer parts).
func NewSPI(port spi.Port, count int, speed physic.Frequency, resetUs int) (*SPI, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", count)
	}
	if speed <= 0 {
		speed = DefaultSpeed
	}
	if resetUs <= 0 {
		resetUs = DefaultResetUs
	}
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("spi connect: %w", err)
	}

	s := &SPI{
		conn:  conn,
		port:  port,
		count: count,
		tail:  resetBytes(speed, resetUs),
	}

	// For each input byte, expand each bit MSB->LSB to 3 SPI bits:
	// bit=1 -> '110' (high longer), bit=0 -> '100' (high shorter).
	for v := 0; v < 256; v++ {
		out := uint32(0)
		for i := 7; i >= 0; i-- {
			tri := uint32(0b100)
			if (v>>i)&1 == 1 {
				tri = 0b110
			}
			out = out<<3 | tri
		}
		s.lut[v] = [3]byte{byte(out >> 16), byte(out >> 8), byte(out)}
	}
	s.enc = make([]byte, count*9+s.tail)
	return s, nil
}

// resetBytes is the number of zero bytes that keep MOSI low for resetUs.
func resetBytes(speed physic.Frequency, resetUs int) int {
	hz := int64(speed / physic.Hertz)
	n := int((hz*int64(resetUs) + 8_000_000 - 1) / 8_000_000)
	if n < 16 {
		n = 16
	}
	return n
}

func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	s.conn = nil
	if c, ok := s.port.(spi.PortCloser); ok {
		return c.Close()
	}
	return nil
}

// Write expands each wire byte to 3 SPI bytes and appends the reset tail.
func (s *SPI) Write(grb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return errClosed
	}
	if len(grb) != s.count*3 {
		return fmt.Errorf("grb length %d does not match count %d", len(grb), s.count)
	}
	off := 0
	for _, v := range grb {
		copy(s.enc[off:off+3], s.lut[v][:])
		off += 3
	}
	for i := off; i < len(s.enc); i++ {
		s.enc[i] = 0
	}
	if err := s.conn.Tx(s.enc, nil); err != nil {
		return fmt.Errorf("spi write: %w", err)
	}
	return nil
}
