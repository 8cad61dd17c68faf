// Package geo provides coordinate types and great-circle distance utilities.
package geo

import "strings"

// DefaultPrecision is the default geohash precision for coarse labels.
// A precision of 6 characters covers roughly a 1.2 km x 0.6 km cell, which is
// enough to tell neighbourhoods apart in logs without pinpointing a listener.
const DefaultPrecision = 6

// base32 is the geohash base32 alphabet.
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// Encode encodes latitude and longitude into a geohash string with the specified precision.
// A precision below 1 falls back to DefaultPrecision.
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = DefaultPrecision
	}

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	var geohash strings.Builder
	geohash.Grow(precision)

	bits := 0
	var ch uint

	even := true
	for geohash.Len() < precision {
		if even {
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng > mid {
				ch |= (1 << (4 - bits))
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= (1 << (4 - bits))
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		even = !even
		bits++

		if bits == 5 {
			geohash.WriteByte(base32[ch])
			bits = 0
			ch = 0
		}
	}

	return geohash.String()
}

// Cell returns the coarse geohash label of p at DefaultPrecision.
// Callers log this instead of raw coordinates.
func (p Point) Cell() string {
	return Encode(p.Lat, p.Lng, DefaultPrecision)
}
