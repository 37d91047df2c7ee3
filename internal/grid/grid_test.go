package grid

import "testing"

func TestCoord_Less(t *testing.T) {
	cases := []struct {
		a, b Coord
		want bool
	}{
		{Coord{X: 0, Y: 0}, Coord{X: 0, Y: 1}, true},
		{Coord{X: 0, Y: 1}, Coord{X: 1, Y: 0}, true},
		{Coord{X: 1, Y: 0}, Coord{X: 0, Y: 5}, false},
		{Coord{X: 2, Y: 3}, Coord{X: 2, Y: 3}, false},
		{Coord{X: 2, Y: 4}, Coord{X: 2, Y: 3}, false},
	}

	for _, tc := range cases {
		if got := tc.a.Less(tc.b); got != tc.want {
			t.Errorf("(%d,%d).Less(%d,%d) = %v, want %v", tc.a.X, tc.a.Y, tc.b.X, tc.b.Y, got, tc.want)
		}
	}
}

func TestCoord_Neighbors(t *testing.T) {
	got := Coord{X: 3, Y: 7}.Neighbors()

	want := map[Coord]bool{
		{X: 4, Y: 7}: true,
		{X: 2, Y: 7}: true,
		{X: 3, Y: 8}: true,
		{X: 3, Y: 6}: true,
	}
	for _, n := range got {
		if !want[n] {
			t.Errorf("unexpected neighbor %v", n)
		}
		delete(want, n)
	}
	if len(want) != 0 {
		t.Errorf("missing neighbors: %v", want)
	}
}
