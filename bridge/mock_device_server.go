package bridge

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"

	"github.com/zenibako/spacemap-qlab/messages"
)

// MockDeviceServer simulates the spatial processor for testing: it holds
// per-mapping object positions and echoes coordinate queries back to the
// caller's bound port. Replies can be muted or delayed to exercise the
// polling and timeout paths.
type MockDeviceServer struct {
	host      string
	port      int
	replyPort int
	server    *osc.Server

	mu         sync.Mutex
	positions  map[string][2]float64
	muted      bool
	replyDelay time.Duration
	queries    int
}

// NewMockDeviceServer creates a mock device bound to host:port that
// addresses reports to host:replyPort.
func NewMockDeviceServer(host string, port, replyPort int) *MockDeviceServer {
	return &MockDeviceServer{
		host:      host,
		port:      port,
		replyPort: replyPort,
		positions: make(map[string][2]float64),
	}
}

// Start binds the mock device.
func (m *MockDeviceServer) Start() error {
	d := osc.NewStandardDispatcher()
	_ = d.AddMsgHandler("*", m.handle)

	m.server = &osc.Server{
		Addr:       fmt.Sprintf("%s:%d", m.host, m.port),
		Dispatcher: d,
	}
	go func() {
		if err := m.server.ListenAndServe(); err != nil &&
			!strings.Contains(err.Error(), "use of closed network connection") {
			log.Errorf("mock device server error: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)
	log.Debugf("mock device server on %s:%d (reports to %d)", m.host, m.port, m.replyPort)
	return nil
}

// Stop closes the mock device.
func (m *MockDeviceServer) Stop() {
	if m.server != nil {
		_ = m.server.CloseConnection()
	}
}

// SetPosition stores the position echoed for an object on a mapping.
func (m *MockDeviceServer) SetPosition(mapping, object int, x, y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[posKey(mapping, object)] = [2]float64{x, y}
}

// Mute controls whether queries are answered at all.
func (m *MockDeviceServer) Mute(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

// SetReplyDelay delays every report by d, to exercise retry cadences.
func (m *MockDeviceServer) SetReplyDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replyDelay = d
}

// Queries returns how many coordinate queries were received.
func (m *MockDeviceServer) Queries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

func (m *MockDeviceServer) handle(msg *osc.Message) {
	variant, mapping, object, err := messages.ParseCoordAddress(msg.Address)
	if err != nil {
		log.Debugf("mock device ignoring %s: %v", msg.Address, err)
		return
	}

	// A payload-carrying message sets the position; a bare address is a
	// query answered with an echo.
	if len(msg.Arguments) > 0 {
		m.applyPayload(variant, mapping, object, msg.Arguments)
		return
	}

	m.mu.Lock()
	m.queries++
	muted := m.muted
	delay := m.replyDelay
	pos := m.positions[posKey(mapping, object)]
	m.mu.Unlock()

	if muted {
		return
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	reply := osc.NewMessage(msg.Address)
	switch variant {
	case messages.VariantXY:
		reply.Append(float32(pos[0]))
		reply.Append(float32(pos[1]))
	case messages.VariantX:
		reply.Append(float32(pos[0]))
	case messages.VariantY:
		reply.Append(float32(pos[1]))
	}

	client := osc.NewClient(m.host, m.replyPort)
	if err := client.Send(reply); err != nil {
		log.Errorf("mock device failed to send report: %v", err)
	}
}

func (m *MockDeviceServer) applyPayload(variant messages.CoordVariant, mapping, object int, args []any) {
	values := make([]float64, 0, len(args))
	for _, arg := range args {
		v, ok := coordValue(arg)
		if !ok {
			return
		}
		values = append(values, v)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.positions[posKey(mapping, object)]
	switch {
	case variant == messages.VariantXY && len(values) == 2:
		pos = [2]float64{values[0], values[1]}
	case variant == messages.VariantX && len(values) == 1:
		pos[0] = values[0]
	case variant == messages.VariantY && len(values) == 1:
		pos[1] = values[0]
	default:
		return
	}
	m.positions[posKey(mapping, object)] = pos
}

func posKey(mapping, object int) string {
	return fmt.Sprintf("%d/%d", mapping, object)
}
