package layout

import "testing"

func TestIndexIsBijection(t *testing.T) {
	g := Matrix5x5
	seen := make(map[int]bool, g.Count())
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			i := g.Index(x, y)
			if i < 0 || i >= g.Count() {
				t.Fatalf("Index(%d,%d)=%d out of range", x, y, i)
			}
			if seen[i] {
				t.Fatalf("Index(%d,%d)=%d already used", x, y, i)
			}
			seen[i] = true
			if gx, gy := g.Coords(i); gx != x || gy != y {
				t.Fatalf("Coords(Index(%d,%d)) = (%d,%d)", x, y, gx, gy)
			}
		}
	}
	if len(seen) != 25 {
		t.Fatalf("expected 25 indices, got %d", len(seen))
	}
}

func TestSerpentineRows(t *testing.T) {
	g := Matrix5x5
	cases := []struct{ x, y, want int }{
		{0, 0, 0}, {4, 0, 4},
		{0, 1, 9}, {4, 1, 5},
		{2, 2, 12},
		{0, 3, 19}, {4, 3, 15},
		{4, 4, 24},
	}
	for _, c := range cases {
		if got := g.Index(c.x, c.y); got != c.want {
			t.Errorf("Index(%d,%d)=%d want %d", c.x, c.y, got, c.want)
		}
	}
}

func TestRasterOrderWithoutSerpentine(t *testing.T) {
	g := Grid{W: 3, H: 2}
	if got := g.Index(0, 1); got != 3 {
		t.Fatalf("Index(0,1)=%d want 3", got)
	}
	if x, y := g.Coords(5); x != 2 || y != 1 {
		t.Fatalf("Coords(5)=(%d,%d) want (2,1)", x, y)
	}
	if g.Contains(3, 0) || g.Contains(0, -1) || !g.Contains(2, 1) {
		t.Fatal("Contains bounds wrong")
	}
}
