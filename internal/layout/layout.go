// Package layout maps logical matrix coordinates to the position of an LED on
// its data chain.
package layout

// Grid is a W×H LED panel. With Serpentine set the chain runs left to right
// on even rows and right to left on odd rows.
type Grid struct {
	W, H       int
	Serpentine bool
}

// Matrix5x5 is the board's 25-LED panel.
var Matrix5x5 = Grid{W: 5, H: 5, Serpentine: true}

// Index maps x,y -> chain index (0..N-1).
func (g Grid) Index(x, y int) int {
	if g.Serpentine && y%2 == 1 {
		x = g.W - 1 - x
	}
	return y*g.W + x
}

// Coords is the inverse of Index.
func (g Grid) Coords(i int) (x, y int) {
	y = i / g.W
	x = i % g.W
	if g.Serpentine && y%2 == 1 {
		x = g.W - 1 - x
	}
	return x, y
}

// Contains reports whether x,y lies on the panel.
func (g Grid) Contains(x, y int) bool {
	return x >= 0 && x < g.W && y >= 0 && y < g.H
}

func (g Grid) Count() int {
	return g.W * g.H
}
