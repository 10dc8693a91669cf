package bridge

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"

	"github.com/zenibako/spacemap-qlab/messages"
)

// Device exposes position queries against the spatial processor. A query
// is the bare coordinate address; the device echoes the same address
// carrying the current values, so each query is a polling wait on its
// own address.
type Device struct {
	correlator *Correlator
}

// NewDevice wraps the device-side correlator.
func NewDevice(correlator *Correlator) *Device {
	return &Device{correlator: correlator}
}

// QueryPosition fetches the current x/y of an object on a mapping.
func (d *Device) QueryPosition(mapping, object int) (float64, float64, error) {
	if !messages.ValidMapping(mapping) {
		return 0, 0, fmt.Errorf("mapping %d: %w", mapping, ErrOutOfRange)
	}
	if !messages.ValidObject(object) {
		return 0, 0, fmt.Errorf("object %d: %w", object, ErrOutOfRange)
	}

	address := messages.CoordAddress(messages.VariantXY, mapping, object)
	reply, err := d.correlator.Poll(address, osc.NewMessage(address))
	if err != nil {
		return 0, 0, fmt.Errorf("query position %d/%d: %w", mapping, object, err)
	}

	if len(reply.Args) != 2 {
		return 0, 0, fmt.Errorf("%w: position report for %s carries %d values, want 2",
			ErrDecode, address, len(reply.Args))
	}
	x, okX := coordValue(reply.Args[0])
	y, okY := coordValue(reply.Args[1])
	if !okX || !okY {
		return 0, 0, fmt.Errorf("%w: non-numeric position report for %s", ErrDecode, address)
	}
	return x, y, nil
}
