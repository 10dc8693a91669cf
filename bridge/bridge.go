package bridge

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"

	"github.com/zenibako/spacemap-qlab/messages"
)

// Ports collects the UDP port numbers of one bridge session. Production
// sessions always use DefaultPorts; tests substitute loopback ports.
type Ports struct {
	DeviceSend  int
	DeviceRecv  int
	ConsoleSend int
	ConsoleRecv int
}

// DefaultPorts are the fixed protocol ports.
func DefaultPorts() Ports {
	return Ports{
		DeviceSend:  messages.DevicePort,
		DeviceRecv:  messages.DeviceReplyPort,
		ConsoleSend: messages.ConsolePort,
		ConsoleRecv: messages.ConsoleReplyPort,
	}
}

// Bridge owns the two endpoints and the components built on them.
type Bridge struct {
	cfg             Config
	deviceEndpoint  *Endpoint
	consoleEndpoint *Endpoint

	Cache        *PositionCache
	Console      *Console
	Device       *Device
	Orchestrator *Orchestrator
}

// New assembles a bridge session on the fixed protocol ports.
func New(cfg Config, collapser Collapser) (*Bridge, error) {
	return NewWithPorts(cfg, DefaultPorts(), collapser)
}

// NewWithPorts assembles a bridge session on explicit ports.
func NewWithPorts(cfg Config, ports Ports, collapser Collapser) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	b := &Bridge{cfg: cfg, Cache: NewPositionCache()}

	var router *Router
	dispatch := func(msg *osc.Message) { router.Dispatch(msg) }

	b.deviceEndpoint = NewEndpoint("device", cfg.DeviceHost, ports.DeviceSend, ports.DeviceRecv, dispatch)
	b.consoleEndpoint = NewEndpoint("console", cfg.ConsoleHost, ports.ConsoleSend, ports.ConsoleRecv, dispatch)

	deviceCorrelator := NewCorrelator(b.deviceEndpoint.Send)
	consoleCorrelator := NewCorrelator(b.consoleEndpoint.Send)
	router = NewRouter(consoleCorrelator, deviceCorrelator, b.Cache)

	b.Console = NewConsole(consoleCorrelator)
	b.Device = NewDevice(deviceCorrelator)
	b.Orchestrator = NewOrchestrator(b.Console, b.Device, b.Cache, cfg, collapser)

	for _, obj := range cfg.Objects {
		if err := b.Cache.Add(obj.Number, obj.Name); err != nil {
			return nil, fmt.Errorf("seed cache: %w", err)
		}
	}
	return b, nil
}

// Start binds both receive ports and connects to the console.
func (b *Bridge) Start() error {
	if err := b.deviceEndpoint.Listen(); err != nil {
		return err
	}
	if err := b.consoleEndpoint.Listen(); err != nil {
		b.deviceEndpoint.Close()
		return err
	}
	if err := b.Console.Connect(b.cfg.Passcode); err != nil {
		b.Close()
		return err
	}
	log.Info("bridge started",
		"device", b.cfg.DeviceHost, "console", b.cfg.ConsoleHost,
		"tracked_objects", b.Cache.Len())
	return nil
}

// Close tears down both endpoints.
func (b *Bridge) Close() {
	b.deviceEndpoint.Close()
	b.consoleEndpoint.Close()
}
