package bridge

import (
	"fmt"
	"strings"

	"github.com/hypebeast/go-osc/osc"
)

// Message is a decoded inbound packet: the raw address, its ordered
// arguments, the address split into segments, the arguments flattened to
// strings, and a joined text form for diagnostics.
type Message struct {
	Address   string
	Arguments []any
	Segments  []string
	Values    []string
	Text      string
}

// DecodeMessage turns a raw OSC message into a Message. Packets without
// a rooted, non-empty address are malformed.
func DecodeMessage(msg *osc.Message) (Message, error) {
	if msg == nil || msg.Address == "" {
		return Message{}, fmt.Errorf("%w: empty address", ErrDecode)
	}
	if !strings.HasPrefix(msg.Address, "/") {
		return Message{}, fmt.Errorf("%w: unrooted address %q", ErrDecode, msg.Address)
	}

	segments := strings.Split(strings.TrimPrefix(msg.Address, "/"), "/")
	values := make([]string, len(msg.Arguments))
	for i, arg := range msg.Arguments {
		values[i] = fmt.Sprintf("%v", arg)
	}

	return Message{
		Address:   msg.Address,
		Arguments: msg.Arguments,
		Segments:  segments,
		Values:    values,
		Text:      strings.TrimSpace(msg.Address + " " + strings.Join(values, " ")),
	}, nil
}

// coordValue converts an OSC numeric argument to a float64. The codec
// delivers float32 for wire floats.
func coordValue(arg any) (float64, bool) {
	switch v := arg.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
