package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
)

// Endpoint is one datagram leg of the bridge: a client toward the peer's
// fixed request port and a server bound to our fixed receive port.
type Endpoint struct {
	name     string
	client   *osc.Client
	server   *osc.Server
	bindAddr string
}

// NewEndpoint builds an endpoint toward host. dispatch receives every
// inbound packet on the bound port.
func NewEndpoint(name, host string, sendPort, recvPort int, dispatch func(*osc.Message)) *Endpoint {
	d := osc.NewStandardDispatcher()
	_ = d.AddMsgHandler("*", dispatch)

	bindAddr := fmt.Sprintf("%s:%d", "0.0.0.0", recvPort)
	return &Endpoint{
		name:     name,
		client:   osc.NewClient(host, sendPort),
		bindAddr: bindAddr,
		server: &osc.Server{
			Addr:       bindAddr,
			Dispatcher: d,
		},
	}
}

// Send transmits one already-built message to the peer.
func (e *Endpoint) Send(msg *osc.Message) error {
	if err := e.client.Send(msg); err != nil {
		return fmt.Errorf("%s send: %w", e.name, err)
	}
	return nil
}

// Listen starts the receive loop. Returns once the server is bound or
// the bind failed.
func (e *Endpoint) Listen() error {
	started := make(chan error, 1)
	go func() {
		err := e.server.ListenAndServe()
		if err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			log.Errorf("%s listener exited: %v", e.name, err)
		}
		started <- err
	}()

	select {
	case err := <-started:
		if err != nil {
			return fmt.Errorf("%s listener on %s: %w", e.name, e.bindAddr, err)
		}
		return nil
	case <-time.After(200 * time.Millisecond):
		log.Debugf("%s listener started on %s", e.name, e.bindAddr)
		return nil
	}
}

// Close tears down the receive loop.
func (e *Endpoint) Close() {
	if e.server == nil {
		return
	}
	if err := e.server.CloseConnection(); err != nil {
		log.Warnf("close %s listener: %v", e.name, err)
	}
}
