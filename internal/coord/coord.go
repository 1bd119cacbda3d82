// Package coord implements the packed tile-coordinate encoding: a single
// uint32 combining zoom, x and a complemented y so that ordering the raw
// integers yields the pipeline's required write-order.
package coord

import "fmt"

// MaxZoom is the highest zoom level this encoding supports.
const MaxZoom = 14

// Tile is a packed (z, x, y) triple. The zero value is the tile at
// z=0, x=0, y=0.
//
// Layout, high bit to low bit:
//
//	bits 31..28  zoom code (4 bits) - z remapped so the low zooms
//	             (z in [0,7]) occupy codes 8..15 and the high zooms
//	             (z in [8,14]) occupy codes 0..6, per the source's
//	             bucketing scheme
//	bits 27..14  x (14 bits)
//	bits 13..0   complemented y: (2^z - 1) - y (14 bits)
type Tile uint32

// New packs z, x, y into a Tile. x wraps modulo 2^z (including
// negative x); y clamps to [0, 2^z).
func New(z, x, y int) Tile {
	n := 1 << uint(z)

	x = ((x % n) + n) % n

	if y < 0 {
		y = 0
	} else if y >= n {
		y = n - 1
	}

	yComp := (n - 1) - y

	return Tile(uint32(zoomCode(z))<<28 | uint32(x)<<14 | uint32(yComp))
}

// zoomCode maps z to the 4-bit bucketed code described on Tile.
func zoomCode(z int) int {
	if z < 8 {
		return z + 8
	}
	return z - 8
}

// unzoomCode is the inverse of zoomCode.
func unzoomCode(code int) int {
	if code >= 8 {
		return code - 8
	}
	return code + 8
}

// Z returns the zoom level.
func (t Tile) Z() int {
	return unzoomCode(int(t >> 28))
}

// X returns the x coordinate.
func (t Tile) X() int {
	return int((t >> 14) & 0x3FFF)
}

// Y returns the y coordinate, un-complementing it against the tile's zoom.
func (t Tile) Y() int {
	z := t.Z()
	n := 1 << uint(z)
	yComp := int(t & 0x3FFF)
	return (n - 1) - yComp
}

// Decode is a convenience that returns all three components at once.
func (t Tile) Decode() (z, x, y int) {
	return t.Z(), t.X(), t.Y()
}

// Less reports whether t sorts strictly before other under the packed
// ordering (zoom-bucket major, then x, then complemented-y).
func (t Tile) Less(other Tile) bool {
	return uint32(t) < uint32(other)
}

// Compare returns -1, 0 or 1 as t is less than, equal to, or greater
// than other.
func (t Tile) Compare(other Tile) int {
	switch {
	case t < other:
		return -1
	case t > other:
		return 1
	default:
		return 0
	}
}

// String renders the tile as "z/x/y".
func (t Tile) String() string {
	z, x, y := t.Decode()
	return fmt.Sprintf("%d/%d/%d", z, x, y)
}

// TMS returns the TMS-convention row for this tile: (2^z - 1) - y.
func (t Tile) TMS() (z, x, yTMS int) {
	z, x, y := t.Decode()
	n := 1 << uint(z)
	return z, x, (n - 1) - y
}

// ValidZoom reports whether z is within the encoding's supported range.
func ValidZoom(z int) bool {
	return z >= 0 && z <= MaxZoom
}
