package messages

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Coordinate-address grammar for the Spacemap side:
//
//	/spacemap/{variant}/{mapping}/{object} [payload...]
//
// where variant selects the payload shape (xy carries two floats, x and y
// one each), mapping is 1..4 and object is 1..64. An address sent with no
// payload is a query; the device echoes the same address carrying the
// current values.

// SpacemapPrefix is the first segment of every device address.
const SpacemapPrefix = "/spacemap"

// CoordVariant selects which coordinates a message carries.
type CoordVariant string

const (
	VariantXY CoordVariant = "xy"
	VariantX  CoordVariant = "x"
	VariantY  CoordVariant = "y"
)

// Object and mapping bounds. Fixed by the device, not configurable.
const (
	ObjectMin  = 1
	ObjectMax  = 64
	MappingMin = 1
	MappingMax = 4
)

// ValidObject reports whether n is a legal object number.
func ValidObject(n int) bool {
	return n >= ObjectMin && n <= ObjectMax
}

// ValidMapping reports whether m is a legal mapping number.
func ValidMapping(m int) bool {
	return m >= MappingMin && m <= MappingMax
}

// CoordAddress builds a coordinate address for the given variant.
func CoordAddress(variant CoordVariant, mapping, object int) string {
	return fmt.Sprintf("%s/%s/%d/%d", SpacemapPrefix, variant, mapping, object)
}

// ParseCoordAddress splits a device address into its grammar parts.
// Returns an error for anything outside the grammar, including out of
// range mapping or object numbers.
func ParseCoordAddress(address string) (CoordVariant, int, int, error) {
	parts := strings.Split(strings.TrimPrefix(address, "/"), "/")
	if len(parts) != 4 || "/"+parts[0] != SpacemapPrefix {
		return "", 0, 0, fmt.Errorf("not a coordinate address: %s", address)
	}

	variant := CoordVariant(parts[1])
	switch variant {
	case VariantXY, VariantX, VariantY:
	default:
		return "", 0, 0, fmt.Errorf("unknown coordinate variant %q in %s", parts[1], address)
	}

	mapping, err := strconv.Atoi(parts[2])
	if err != nil || !ValidMapping(mapping) {
		return "", 0, 0, fmt.Errorf("bad mapping segment %q in %s", parts[2], address)
	}
	object, err := strconv.Atoi(parts[3])
	if err != nil || !ValidObject(object) {
		return "", 0, 0, fmt.Errorf("bad object segment %q in %s", parts[3], address)
	}

	return variant, mapping, object, nil
}

// commandStringPattern matches the custom command string written into a
// scene's network cues. Updates parse mapping and object back out of it.
var commandStringPattern = regexp.MustCompile(
	`^/spacemap/xy/([1-4])/([1-9][0-9]?)\s+(-?[0-9.]+)\s+(-?[0-9.]+)$`)

// CommandString builds the outbound OSC command a network cue fires at
// the device: the full-payload coordinate address plus both values.
func CommandString(mapping, object int, x, y float64) string {
	return fmt.Sprintf("%s %s %s",
		CoordAddress(VariantXY, mapping, object), formatCoord(x), formatCoord(y))
}

// ParseCommandString recovers mapping and object from a network cue's
// custom command string. The boolean is false when the string does not
// match the coordinate-mapping grammar.
func ParseCommandString(s string) (mapping, object int, ok bool) {
	m := commandStringPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	mapping, _ = strconv.Atoi(m[1])
	object, _ = strconv.Atoi(m[2])
	if !ValidObject(object) {
		return 0, 0, false
	}
	return mapping, object, true
}

// CueLabel builds the display label of a scene's leaf cue.
func CueLabel(object int, name string, x, y float64) string {
	return fmt.Sprintf("%d - %s: %s, %s", object, name, formatCoord(x), formatCoord(y))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
