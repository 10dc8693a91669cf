package messages

import (
	"encoding/json"
	"fmt"
)

// OSC vocabulary for the console (QLab) side of the bridge.

// Fixed UDP ports. QLab listens on 53000 and addresses replies to 53001;
// the Spacemap processor listens on 18032 and we bind 18033 for its
// reports. None of these are configurable.
const (
	ConsolePort      = 53000
	ConsoleReplyPort = 53001
	DevicePort       = 18032
	DeviceReplyPort  = 18033
)

// ReplyPrefix is prepended by the console to the address of every reply.
const ReplyPrefix = "/reply"

// Console cue types as they appear in reply descriptors.
const (
	CueTypeGroup   = "Group"
	CueTypeNetwork = "Network"
)

// Network cue message types. Scene cues always carry a custom OSC string.
const NetworkMessageTypeOSC = 2

// Cue property names settable via /cue_id/{id}/{property}.
const (
	PropName         = "name"
	PropPatch        = "patch"
	PropMessageType  = "messageType"
	PropCustomString = "customString"
	PropDuration     = "duration"
)

// Application-level console addresses.
const (
	AddrConnect     = "/connect"
	AddrAlwaysReply = "/alwaysReply"
)

// SceneLabelPrefix marks console groups created by the bridge. The update
// workflow recognizes scene groups purely by this prefix.
const SceneLabelPrefix = "Spacemap Scene"

// SceneLabel builds the label for a scene group on the given mapping.
func SceneLabel(mapping int) string {
	return fmt.Sprintf("%s (mapping %d)", SceneLabelPrefix, mapping)
}

// ConsoleAddressBuilder builds workspace-scoped console addresses.
type ConsoleAddressBuilder struct {
	workspaceID string
}

// NewConsoleAddressBuilder creates a builder for the given workspace.
// With an empty id the addresses are emitted unscoped, which QLab
// resolves against the frontmost workspace.
func NewConsoleAddressBuilder(workspaceID string) *ConsoleAddressBuilder {
	return &ConsoleAddressBuilder{workspaceID: workspaceID}
}

func (b *ConsoleAddressBuilder) prefix() string {
	if b.workspaceID == "" {
		return ""
	}
	return fmt.Sprintf("/workspace/%s", b.workspaceID)
}

// New builds the cue creation address.
func (b *ConsoleAddressBuilder) New() string {
	return b.prefix() + "/new"
}

// CueProperty builds the address for getting or setting a cue property.
func (b *ConsoleAddressBuilder) CueProperty(uniqueID, property string) string {
	return fmt.Sprintf("%s/cue_id/%s/%s", b.prefix(), uniqueID, property)
}

// Move builds the address that moves a cue under a new parent.
func (b *ConsoleAddressBuilder) Move(uniqueID string) string {
	return fmt.Sprintf("%s/move/%s", b.prefix(), uniqueID)
}

// Children builds the address that lists a cue's immediate children.
func (b *ConsoleAddressBuilder) Children(uniqueID string) string {
	return fmt.Sprintf("%s/cue_id/%s/children/shallow", b.prefix(), uniqueID)
}

// SelectedCues builds the address that returns the current selection.
func (b *ConsoleAddressBuilder) SelectedCues() string {
	return b.prefix() + "/selectedCues/shallow"
}

// Select builds the address that moves the console selection to a cue.
func (b *ConsoleAddressBuilder) Select(uniqueID string) string {
	return fmt.Sprintf("%s/select_id/%s", b.prefix(), uniqueID)
}

// ReplyAddress returns the address the console echoes a request on.
func ReplyAddress(requestAddress string) string {
	return ReplyPrefix + requestAddress
}

// ReplyEnvelope is the JSON object carried as the first argument of every
// console reply. Address echoes the request address; Data is a cue id for
// /new, an array of cue descriptors for selection and children queries,
// or a plain string for property queries.
type ReplyEnvelope struct {
	WorkspaceID string          `json:"workspace_id,omitempty"`
	Address     string          `json:"address"`
	Status      string          `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// ParseReplyEnvelope decodes the envelope from a reply's first argument.
func ParseReplyEnvelope(arg any) (*ReplyEnvelope, error) {
	raw, ok := arg.(string)
	if !ok {
		return nil, fmt.Errorf("reply envelope is %T, want string", arg)
	}
	var env ReplyEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("parse reply envelope: %w", err)
	}
	return &env, nil
}

// DataString returns the envelope payload as a string.
func (e *ReplyEnvelope) DataString() (string, error) {
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("envelope data is not a string: %w", err)
	}
	return s, nil
}

// OK reports whether the console accepted the request.
func (e *ReplyEnvelope) OK() bool {
	return e.Status == "ok"
}
