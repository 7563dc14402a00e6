// Package math provides the vector and rotation value types shared by the
// exporter and the engine number formatting used in level files.
package math

import (
	"strconv"
	"strings"
)

// Vec3 is a 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

// Vec3FromSlice builds a vector from up to three components.
// Missing components are left at zero.
func Vec3FromSlice(s []float32) Vec3 {
	var v Vec3
	if len(s) > 0 {
		v.X = s[0]
	}
	if len(s) > 1 {
		v.Y = s[1]
	}
	if len(s) > 2 {
		v.Z = s[2]
	}
	return v
}

// String formats the vector as the engine expects it: "x, y, z".
func (v Vec3) String() string {
	return JoinFloats(v.X, v.Y, v.Z)
}

// FormatFloat returns the shortest plain decimal that round-trips v as a
// float32. Whole numbers carry no fraction, so 1 prints as "1" and -0 prints
// as "0". Exponent notation is never used.
func FormatFloat(v float32) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// JoinFloats formats values with FormatFloat and joins them with ", ".
func JoinFloats(values ...float32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatFloat(v)
	}
	return strings.Join(parts, ", ")
}
