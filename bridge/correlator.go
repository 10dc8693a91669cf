package bridge

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hypebeast/go-osc/osc"

	"github.com/zenibako/spacemap-qlab/messages"
)

// Timing budgets. Fixed, not configurable.
const (
	singleShotTimeout = 1 * time.Second
	pollInterval      = 250 * time.Millisecond
	pollTimeout       = 2500 * time.Millisecond
)

// Reply is what a pending wait resolves with. Envelope is non-nil for
// console replies; device reports carry their values in Args.
type Reply struct {
	Address  string
	Args     []any
	Envelope *messages.ReplyEnvelope
}

// pendingWait is one outstanding correlation entry. The channel is
// buffered so Observe never blocks on a settling waiter.
type pendingWait struct {
	token  uuid.UUID
	target string
	ch     chan Reply
}

// Correlator turns a fire-and-forget send primitive into awaitable,
// timed request/reply operations. Waits are kept in registration order;
// a reply settles the oldest wait whose target address is a suffix of
// the reply address, so concurrent waits on one address never
// cross-resolve.
type Correlator struct {
	mu    sync.Mutex
	waits []*pendingWait
	send  func(*osc.Message) error
}

// NewCorrelator wraps the given send primitive.
func NewCorrelator(send func(*osc.Message) error) *Correlator {
	return &Correlator{send: send}
}

// Send transmits a message without registering a wait.
func (c *Correlator) Send(msg *osc.Message) error {
	if err := c.send(msg); err != nil {
		return fmt.Errorf("%w: send %s: %v", ErrTransport, msg.Address, err)
	}
	return nil
}

func (c *Correlator) register(target string) *pendingWait {
	w := &pendingWait{
		token:  uuid.New(),
		target: target,
		ch:     make(chan Reply, 1),
	}
	c.mu.Lock()
	c.waits = append(c.waits, w)
	c.mu.Unlock()
	return w
}

// remove drops the wait from the registry. A no-op when Observe already
// popped it, so settlement stays exactly-once.
func (c *Correlator) remove(w *pendingWait) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.waits {
		if o.token == w.token {
			c.waits = append(c.waits[:i], c.waits[i+1:]...)
			return
		}
	}
}

// Observe delivers a reply-observed event. The oldest wait whose target
// is a suffix of the reply address is popped under the lock and resolved;
// returns false when no wait matched.
func (c *Correlator) Observe(reply Reply) bool {
	c.mu.Lock()
	var matched *pendingWait
	for i, w := range c.waits {
		if strings.HasSuffix(reply.Address, w.target) {
			matched = w
			c.waits = append(c.waits[:i], c.waits[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	if matched == nil {
		return false
	}
	matched.ch <- reply
	return true
}

// Pending returns the number of outstanding waits.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waits)
}

// Await sends once and resolves with the first reply whose address ends
// with target, or fails with ErrTimeout after one second. There is no
// retransmission. The wait is deregistered on every exit path.
func (c *Correlator) Await(target string, msg *osc.Message) (Reply, error) {
	w := c.register(target)

	if err := c.send(msg); err != nil {
		c.remove(w)
		return Reply{}, fmt.Errorf("%w: send %s: %v", ErrTransport, msg.Address, err)
	}
	log.Debugf("sent %s, awaiting reply for %s", msg.Address, target)

	timer := time.NewTimer(singleShotTimeout)
	defer timer.Stop()

	select {
	case reply := <-w.ch:
		log.Debugf("reply observed for %s", target)
		return reply, nil
	case <-timer.C:
		c.remove(w)
		// A reply may have been delivered between the deadline firing
		// and the removal; it still wins.
		select {
		case reply := <-w.ch:
			return reply, nil
		default:
		}
		return Reply{}, fmt.Errorf("%w: no reply for %s within %v", ErrTimeout, target, singleShotTimeout)
	}
}

// Poll sends, then resends the identical payload every 250 ms until a
// matching reply arrives, failing with ErrTimeout after 2.5 s. The retry
// ticker is stopped and the wait deregistered before any result is
// reported, on every exit path.
func (c *Correlator) Poll(target string, msg *osc.Message) (Reply, error) {
	w := c.register(target)

	if err := c.send(msg); err != nil {
		c.remove(w)
		return Reply{}, fmt.Errorf("%w: send %s: %v", ErrTransport, msg.Address, err)
	}
	log.Debugf("sent %s, polling for %s", msg.Address, target)

	ticker := time.NewTicker(pollInterval)
	deadline := time.NewTimer(pollTimeout)
	defer ticker.Stop()
	defer deadline.Stop()

	for {
		select {
		case reply := <-w.ch:
			log.Debugf("reply observed for %s", target)
			return reply, nil
		case <-ticker.C:
			// Transient send failures do not abort the wait; the
			// deadline bounds the whole operation.
			if err := c.send(msg); err != nil {
				log.Warnf("retransmit %s: %v", msg.Address, err)
			}
		case <-deadline.C:
			ticker.Stop()
			c.remove(w)
			select {
			case reply := <-w.ch:
				return reply, nil
			default:
			}
			return Reply{}, fmt.Errorf("%w: no reply for %s within %v", ErrTimeout, target, pollTimeout)
		}
	}
}
