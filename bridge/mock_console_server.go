package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
)

// ReceivedMessage captures one inbound OSC message for test assertions.
type ReceivedMessage struct {
	Address   string
	Arguments []any
	Timestamp time.Time
}

// MockConsoleServer simulates the QLab side for testing: an in-memory
// cue store behind the real wire protocol, replying with JSON envelopes
// to the caller's reply port.
type MockConsoleServer struct {
	host        string
	port        int
	replyPort   int
	workspaceID string
	server      *osc.Server

	mu        sync.Mutex
	cues      map[string]*MockCue
	order     []string
	nextID    int
	selection []string
	received  []ReceivedMessage
}

// MockCue is one cue in the mock console workspace.
type MockCue struct {
	UniqueID   string
	Type       string
	Name       string
	Parent     string
	Children   []string
	Properties map[string]string
}

// NewMockConsoleServer creates a mock console bound to host:port that
// addresses replies to host:replyPort.
func NewMockConsoleServer(host string, port, replyPort int) *MockConsoleServer {
	return &MockConsoleServer{
		host:        host,
		port:        port,
		replyPort:   replyPort,
		workspaceID: "MOCK-WORKSPACE-1234",
		cues:        make(map[string]*MockCue),
	}
}

// Start binds the mock console.
func (m *MockConsoleServer) Start() error {
	d := osc.NewStandardDispatcher()
	_ = d.AddMsgHandler("*", m.handle)

	m.server = &osc.Server{
		Addr:       fmt.Sprintf("%s:%d", m.host, m.port),
		Dispatcher: d,
	}
	go func() {
		if err := m.server.ListenAndServe(); err != nil &&
			!strings.Contains(err.Error(), "use of closed network connection") {
			log.Errorf("mock console server error: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)
	log.Debugf("mock console server on %s:%d (replies to %d)", m.host, m.port, m.replyPort)
	return nil
}

// Stop closes the mock console.
func (m *MockConsoleServer) Stop() {
	if m.server != nil {
		_ = m.server.CloseConnection()
	}
}

// WorkspaceID returns the mock workspace id.
func (m *MockConsoleServer) WorkspaceID() string {
	return m.workspaceID
}

func (m *MockConsoleServer) handle(msg *osc.Message) {
	m.mu.Lock()
	m.received = append(m.received, ReceivedMessage{
		Address:   msg.Address,
		Arguments: append([]any{}, msg.Arguments...),
		Timestamp: time.Now(),
	})
	m.mu.Unlock()

	address := msg.Address
	trimmed := strings.TrimPrefix(address, fmt.Sprintf("/workspace/%s", m.workspaceID))
	parts := strings.Split(strings.TrimPrefix(trimmed, "/"), "/")

	switch {
	case trimmed == "/connect":
		m.sendReply(address, "ok:view|edit|control")
	case trimmed == "/alwaysReply":
		m.sendReply(address, "1")
	case trimmed == "/new":
		m.handleNew(msg)
	case trimmed == "/selectedCues/shallow":
		m.sendReply(address, m.descriptors(m.snapshotSelection()))
	case parts[0] == "cue_id" && len(parts) >= 3:
		m.handleCueID(msg, parts[1], strings.Join(parts[2:], "/"))
	case parts[0] == "move" && len(parts) == 2:
		m.handleMove(msg, parts[1])
	case parts[0] == "select_id" && len(parts) == 2:
		m.mu.Lock()
		m.selection = []string{parts[1]}
		m.mu.Unlock()
		m.sendReply(address, nil)
	default:
		m.sendError(address, fmt.Sprintf("unhandled address %s", address))
	}
}

func (m *MockConsoleServer) handleNew(msg *osc.Message) {
	if len(msg.Arguments) == 0 {
		m.sendError(msg.Address, "no cue type specified")
		return
	}
	cueType, _ := msg.Arguments[0].(string)

	m.mu.Lock()
	m.nextID++
	uniqueID := fmt.Sprintf("MOCK-CUE-%d", m.nextID)
	cue := &MockCue{
		UniqueID:   uniqueID,
		Type:       mockCueType(cueType),
		Properties: make(map[string]string),
	}
	if len(msg.Arguments) > 1 {
		if parent, ok := msg.Arguments[1].(string); ok && parent != "" {
			cue.Parent = parent
			if p, exists := m.cues[parent]; exists {
				p.Children = append(p.Children, uniqueID)
			}
		}
	}
	m.cues[uniqueID] = cue
	m.order = append(m.order, uniqueID)
	m.mu.Unlock()

	log.Debugf("mock console created %s cue %s", cueType, uniqueID)
	m.sendReply(msg.Address, uniqueID)
}

func (m *MockConsoleServer) handleCueID(msg *osc.Message, uniqueID, property string) {
	m.mu.Lock()
	cue, exists := m.cues[uniqueID]
	if !exists {
		m.mu.Unlock()
		m.sendError(msg.Address, fmt.Sprintf("cue %s not found", uniqueID))
		return
	}

	if property == "children/shallow" {
		children := append([]string{}, cue.Children...)
		m.mu.Unlock()
		m.sendReply(msg.Address, m.descriptors(children))
		return
	}

	if len(msg.Arguments) == 0 {
		var value string
		if property == "name" {
			value = cue.Name
		} else {
			value = cue.Properties[property]
		}
		m.mu.Unlock()
		m.sendReply(msg.Address, value)
		return
	}

	value := fmt.Sprintf("%v", msg.Arguments[0])
	if property == "name" {
		cue.Name = value
	} else {
		cue.Properties[property] = value
	}
	m.mu.Unlock()
	m.sendReply(msg.Address, nil)
}

func (m *MockConsoleServer) handleMove(msg *osc.Message, uniqueID string) {
	if len(msg.Arguments) != 2 {
		m.sendError(msg.Address, fmt.Sprintf("expected 2 arguments for move, got %d", len(msg.Arguments)))
		return
	}
	parentID, _ := msg.Arguments[1].(string)

	m.mu.Lock()
	if cue, exists := m.cues[uniqueID]; exists {
		if old, ok := m.cues[cue.Parent]; ok {
			old.Children = removeString(old.Children, uniqueID)
		}
		cue.Parent = parentID
		if parent, ok := m.cues[parentID]; ok && !containsString(parent.Children, uniqueID) {
			parent.Children = append(parent.Children, uniqueID)
		}
	}
	m.mu.Unlock()
	m.sendReply(msg.Address, nil)
}

// descriptors renders cue descriptors for the given ids.
func (m *MockConsoleServer) descriptors(ids []string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]any, 0, len(ids))
	for _, id := range ids {
		cue, ok := m.cues[id]
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"uniqueID": cue.UniqueID,
			"name":     cue.Name,
			"type":     cue.Type,
		})
	}
	return out
}

func (m *MockConsoleServer) snapshotSelection() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.selection...)
}

// sendReply wraps data in the reply envelope and sends it to the
// caller's reply port under the /reply-prefixed address.
func (m *MockConsoleServer) sendReply(address string, data any) {
	m.sendEnvelope(address, "ok", data)
}

func (m *MockConsoleServer) sendError(address, errorMsg string) {
	log.Debugf("mock console error for %s: %s", address, errorMsg)
	m.sendEnvelope(address, "error", nil)
}

func (m *MockConsoleServer) sendEnvelope(address, status string, data any) {
	envelope := map[string]any{
		"workspace_id": m.workspaceID,
		"address":      address,
		"status":       status,
	}
	if data != nil {
		envelope["data"] = data
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Errorf("mock console failed to marshal envelope: %v", err)
		return
	}

	reply := osc.NewMessage("/reply" + address)
	reply.Append(string(payload))

	client := osc.NewClient(m.host, m.replyPort)
	if err := client.Send(reply); err != nil {
		log.Errorf("mock console failed to send reply: %v", err)
	}
}

// SetSelection replaces the mock selection, for update workflow tests.
func (m *MockConsoleServer) SetSelection(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selection = append([]string{}, ids...)
}

// Cue returns a cue by unique id, or nil.
func (m *MockConsoleServer) Cue(uniqueID string) *MockCue {
	m.mu.Lock()
	defer m.mu.Unlock()
	cue, ok := m.cues[uniqueID]
	if !ok {
		return nil
	}
	clone := *cue
	clone.Children = append([]string{}, cue.Children...)
	clone.Properties = make(map[string]string, len(cue.Properties))
	for k, v := range cue.Properties {
		clone.Properties[k] = v
	}
	return &clone
}

// CuesOfType returns all cues of the given type in creation order.
func (m *MockConsoleServer) CuesOfType(cueType string) []*MockCue {
	m.mu.Lock()
	ids := append([]string{}, m.order...)
	m.mu.Unlock()

	var out []*MockCue
	for _, id := range ids {
		if cue := m.Cue(id); cue != nil && cue.Type == cueType {
			out = append(out, cue)
		}
	}
	return out
}

// ReceivedMessages returns a copy of every captured inbound message.
func (m *MockConsoleServer) ReceivedMessages() []ReceivedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReceivedMessage, len(m.received))
	copy(out, m.received)
	return out
}

func mockCueType(requested string) string {
	switch strings.ToLower(requested) {
	case "group":
		return "Group"
	case "network":
		return "Network"
	default:
		return requested
	}
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
