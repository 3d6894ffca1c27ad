// Package geohash implements encode/adjacent/neighbours8 over the standard
// base-32 geohash alphabet, with correct behaviour at grid boundaries via
// recursion into the parent cell.
package geohash

import "strings"

const base32Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// Direction is one of the four cardinal directions used for adjacency.
type Direction string

const (
	Top    Direction = "top"
	Bottom Direction = "bottom"
	Left   Direction = "left"
	Right  Direction = "right"
)

type parity int

const (
	even parity = iota
	odd
)

// neighbourTable[direction][parity] is a 32-character string; index i gives
// the alphabet character that lies adjacent, in that direction, to the cell
// whose last character is base32Alphabet[i].
var neighbourTable = map[Direction][2]string{
	Right:  {"bc01fg45238967deuvhjyznpkmstqrwx", "p0r21436x8zb9dcf5h7kjnmqesgutwvy"},
	Left:   {"238967debc01fg45kmstqrwxuvhjyznp", "14365h7k9dcfesgujnmqp0r2twvyx8zb"},
	Top:    {"p0r21436x8zb9dcf5h7kjnmqesgutwvy", "bc01fg45238967deuvhjyznpkmstqrwx"},
	Bottom: {"14365h7k9dcfesgujnmqp0r2twvyx8zb", "238967debc01fg45kmstqrwxuvhjyznp"},
}

// borderTable[direction][parity] lists the characters that, when last in a
// cell, mean the adjacency crosses into the parent cell's neighbour.
var borderTable = map[Direction][2]string{
	Right:  {"bcfguvyz", "prxz"},
	Left:   {"0145hjnp", "028b"},
	Top:    {"prxz", "bcfguvyz"},
	Bottom: {"028b", "0145hjnp"},
}

func parityOf(s string) parity {
	if len(s)%2 == 0 {
		return even
	}
	return odd
}

// Encode returns the canonical geohash for (lat, lon) at the given
// precision (number of base-32 characters).
func Encode(lat, lon float64, precision int) string {
	latRange := [2]float64{-90, 90}
	lonRange := [2]float64{-180, 180}

	var bits strings.Builder
	evenBit := true
	for bits.Len() < precision*5 {
		if evenBit {
			mid := (lonRange[0] + lonRange[1]) / 2
			if lon >= mid {
				bits.WriteByte('1')
				lonRange[0] = mid
			} else {
				bits.WriteByte('0')
				lonRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat >= mid {
				bits.WriteByte('1')
				latRange[0] = mid
			} else {
				bits.WriteByte('0')
				latRange[1] = mid
			}
		}
		evenBit = !evenBit
	}

	bitstr := bits.String()
	var out strings.Builder
	for i := 0; i < len(bitstr); i += 5 {
		chunk := bitstr[i : i+5]
		idx := 0
		for _, c := range chunk {
			idx <<= 1
			if c == '1' {
				idx |= 1
			}
		}
		out.WriteByte(base32Alphabet[idx])
	}
	return out.String()
}

// Adjacent returns the geohash cell adjacent to cell in the given
// direction, recursing into the parent cell when the last character falls
// off the row/column edge so polar/meridian boundaries need no special case.
func Adjacent(cell string, dir Direction) string {
	if cell == "" {
		return ""
	}
	cell = strings.ToLower(cell)
	last := cell[len(cell)-1]
	parent := cell[:len(cell)-1]
	p := parityOf(cell)

	if strings.IndexByte(borderTable[dir][p], last) >= 0 && parent != "" {
		parent = Adjacent(parent, dir)
	}

	idx := strings.IndexByte(neighbourTable[dir][p], last)
	if idx < 0 {
		return parent
	}
	return parent + string(base32Alphabet[idx])
}

// Neighbours8 returns cell plus the 8 surrounding cells (four cardinal,
// four diagonals composed via Adjacent), deduplicated.
func Neighbours8(cell string) []string {
	top := Adjacent(cell, Top)
	bottom := Adjacent(cell, Bottom)
	right := Adjacent(cell, Right)
	left := Adjacent(cell, Left)

	candidates := []string{
		cell,
		top, bottom, right, left,
		Adjacent(top, Right),
		Adjacent(top, Left),
		Adjacent(bottom, Right),
		Adjacent(bottom, Left),
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
