package bridge

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"

	"github.com/zenibako/spacemap-qlab/messages"
)

// Router decodes inbound packets, classifies them by first address
// segment and fans them out: console replies settle waits on the console
// correlator keyed by the envelope's echoed address, device coordinate
// reports update the cache and settle waits on the device correlator.
// Malformed packets produce a diagnostic and are dropped, never a fault.
type Router struct {
	console *Correlator
	device  *Correlator
	cache   *PositionCache
}

// NewRouter wires the router to both correlators and the cache.
func NewRouter(console, device *Correlator, cache *PositionCache) *Router {
	return &Router{console: console, device: device, cache: cache}
}

// Dispatch handles one inbound packet. Called from the receive loop of
// either endpoint; the two address spaces are disjoint so provenance
// does not matter.
func (r *Router) Dispatch(oscMsg *osc.Message) {
	msg, err := DecodeMessage(oscMsg)
	if err != nil {
		log.Warnf("dropping malformed packet: %v", err)
		return
	}
	log.Debugf("received %s", msg.Text)

	switch "/" + msg.Segments[0] {
	case messages.ReplyPrefix:
		r.dispatchReply(msg)
	case messages.SpacemapPrefix:
		r.dispatchCoordinate(msg)
	default:
		log.Debugf("ignoring message outside bridge domains: %s", msg.Address)
	}
}

// dispatchReply decodes the console reply envelope and republishes it
// keyed by the echoed address, which is distinct from the packet's own
// outer address.
func (r *Router) dispatchReply(msg Message) {
	if len(msg.Arguments) == 0 {
		log.Warnf("dropping reply without envelope: %s", msg.Address)
		return
	}
	env, err := messages.ParseReplyEnvelope(msg.Arguments[0])
	if err != nil {
		log.Warnf("dropping reply with bad envelope on %s: %v", msg.Address, err)
		return
	}

	resolved := r.console.Observe(Reply{
		Address:  env.Address,
		Args:     msg.Arguments,
		Envelope: env,
	})
	if !resolved {
		log.Debugf("reply for %s matched no pending wait", env.Address)
	}
}

// dispatchCoordinate applies a device position report to the cache and
// settles any pending position wait on the same address. Only the
// coordinates the variant carries are applied; reports for untracked
// objects still settle waits.
func (r *Router) dispatchCoordinate(msg Message) {
	variant, _, object, err := messages.ParseCoordAddress(msg.Address)
	if err != nil {
		log.Warnf("dropping coordinate message: %v", err)
		return
	}

	x, y, ok := coordinatePayload(variant, msg.Arguments)
	if !ok {
		log.Warnf("dropping coordinate message with bad payload: %s", msg.Text)
		return
	}

	if err := r.cache.ApplyPosition(object, x, y); err != nil && !errors.Is(err, ErrNotFound) {
		log.Warnf("apply position for object %d: %v", object, err)
	}

	r.device.Observe(Reply{Address: msg.Address, Args: msg.Arguments})
}

// coordinatePayload extracts the variant's coordinates from the argument
// list. A query echo with no payload is not a report.
func coordinatePayload(variant messages.CoordVariant, args []any) (x, y *float64, ok bool) {
	values := make([]float64, 0, len(args))
	for _, arg := range args {
		v, numeric := coordValue(arg)
		if !numeric {
			return nil, nil, false
		}
		values = append(values, v)
	}

	switch variant {
	case messages.VariantXY:
		if len(values) != 2 {
			return nil, nil, false
		}
		return &values[0], &values[1], true
	case messages.VariantX:
		if len(values) != 1 {
			return nil, nil, false
		}
		return &values[0], nil, true
	case messages.VariantY:
		if len(values) != 1 {
			return nil, nil, false
		}
		return nil, &values[0], true
	}
	return nil, nil, false
}
