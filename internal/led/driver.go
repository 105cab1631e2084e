package led

// Driver abstracts an LED output sink.
type Driver interface {
	// Write pushes one frame in wire order: 3 bytes per LED, green first.
	// len(grb) must be 3*N.
	Write(grb []byte) error
	// Close releases resources.
	Close() error
}
