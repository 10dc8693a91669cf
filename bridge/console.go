package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"

	"github.com/zenibako/spacemap-qlab/messages"
)

// CueDescriptor is the shape the console returns for selection and
// children queries.
type CueDescriptor struct {
	UniqueID string `json:"uniqueID"`
	Number   string `json:"number,omitempty"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type"`
}

// Console exposes the cue operations the orchestrator needs, built on
// the correlator. Queries and creations await their reply; property
// sets, moves and selection changes are fire-and-forget.
type Console struct {
	correlator  *Correlator
	builder     *messages.ConsoleAddressBuilder
	workspaceID string
}

// NewConsole wraps the console-side correlator. Addresses are unscoped
// until Connect captures a workspace id.
func NewConsole(correlator *Correlator) *Console {
	return &Console{
		correlator: correlator,
		builder:    messages.NewConsoleAddressBuilder(""),
	}
}

// Connect performs the console handshake, captures the workspace id and
// switches the session to always-reply mode.
func (c *Console) Connect(passcode string) error {
	msg := osc.NewMessage(messages.AddrConnect)
	if passcode != "" {
		msg.Append(passcode)
	}

	reply, err := c.correlator.Await(messages.AddrConnect, msg)
	if err != nil {
		return fmt.Errorf("console connect: %w", err)
	}
	env := reply.Envelope
	if env == nil || !env.OK() {
		return fmt.Errorf("%w: console rejected connect", ErrDecode)
	}
	if data, err := env.DataString(); err == nil && data == "badpass" {
		return fmt.Errorf("console rejected passcode")
	}

	c.workspaceID = env.WorkspaceID
	c.builder = messages.NewConsoleAddressBuilder(env.WorkspaceID)
	log.Info("connected to console", "workspace_id", env.WorkspaceID)

	alwaysReply := osc.NewMessage(messages.AddrAlwaysReply)
	alwaysReply.Append(int32(1))
	if _, err := c.correlator.Await(messages.AddrAlwaysReply, alwaysReply); err != nil {
		log.Warnf("alwaysReply not acknowledged: %v", err)
	}
	return nil
}

// WorkspaceID returns the id captured by Connect.
func (c *Console) WorkspaceID() string {
	return c.workspaceID
}

// CreateCue creates a cue of the given type, optionally under a parent,
// and resolves the console-assigned unique id.
func (c *Console) CreateCue(cueType, parentID string) (string, error) {
	address := c.builder.New()
	msg := osc.NewMessage(address)
	msg.Append(cueType)
	if parentID != "" {
		msg.Append(parentID)
	}

	reply, err := c.correlator.Await(address, msg)
	if err != nil {
		return "", fmt.Errorf("create %s cue: %w", cueType, err)
	}
	env := reply.Envelope
	if env == nil || !env.OK() {
		return "", fmt.Errorf("%w: console refused to create %s cue", ErrDecode, cueType)
	}
	id, err := env.DataString()
	if err != nil || id == "" {
		return "", fmt.Errorf("%w: create %s cue returned no id", ErrDecode, cueType)
	}
	log.Debugf("created %s cue %s", cueType, id)
	return id, nil
}

// SetProperty writes a cue property, fire-and-forget.
func (c *Console) SetProperty(uniqueID, property string, value any) error {
	msg := osc.NewMessage(c.builder.CueProperty(uniqueID, property))
	msg.Append(value)
	return c.correlator.Send(msg)
}

// MoveCue reparents a cue to index under parentID, fire-and-forget.
func (c *Console) MoveCue(uniqueID string, index int, parentID string) error {
	msg := osc.NewMessage(c.builder.Move(uniqueID))
	msg.Append(int32(index))
	msg.Append(parentID)
	return c.correlator.Send(msg)
}

// SelectCue moves the console selection to a cue, fire-and-forget.
func (c *Console) SelectCue(uniqueID string) error {
	return c.correlator.Send(osc.NewMessage(c.builder.Select(uniqueID)))
}

// FetchProperty reads a cue property as a string.
func (c *Console) FetchProperty(uniqueID, property string) (string, error) {
	address := c.builder.CueProperty(uniqueID, property)
	reply, err := c.correlator.Await(address, osc.NewMessage(address))
	if err != nil {
		return "", fmt.Errorf("fetch %s of cue %s: %w", property, uniqueID, err)
	}
	env := reply.Envelope
	if env == nil || !env.OK() {
		return "", fmt.Errorf("%w: console refused %s query for cue %s", ErrDecode, property, uniqueID)
	}
	value, err := env.DataString()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return value, nil
}

// Children lists a cue's immediate children.
func (c *Console) Children(uniqueID string) ([]CueDescriptor, error) {
	address := c.builder.Children(uniqueID)
	return c.fetchDescriptors(address)
}

// FetchSelection returns the console's current selection. This is the
// thin adapter feeding the update workflow; the orchestrator itself
// takes the selection as an explicit argument.
func (c *Console) FetchSelection() ([]CueDescriptor, error) {
	return c.fetchDescriptors(c.builder.SelectedCues())
}

func (c *Console) fetchDescriptors(address string) ([]CueDescriptor, error) {
	reply, err := c.correlator.Await(address, osc.NewMessage(address))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", address, err)
	}
	env := reply.Envelope
	if env == nil || !env.OK() {
		return nil, fmt.Errorf("%w: console refused query %s", ErrDecode, address)
	}

	var descriptors []CueDescriptor
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &descriptors); err != nil {
			return nil, fmt.Errorf("%w: descriptor array for %s: %v", ErrDecode, address, err)
		}
	}
	return descriptors, nil
}
