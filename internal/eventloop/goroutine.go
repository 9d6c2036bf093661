package eventloop

import (
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"

	bankerr "atmbank/internal/errors"
	"atmbank/util"
)

const writeTimeout = 5 * time.Second

// goroutinePoller emulates readiness notification on top of the Go net
// poller.  The accept goroutine and one reader goroutine per connection
// only produce events; they never dispatch.  Events go into a FIFO that
// Wait drains on the loop goroutine.
type goroutinePoller struct {
	ln net.Listener

	mu     sync.Mutex
	events *queue.Queue // of Event
	conns  map[Key]net.Conn
	next   Key
	woken  bool
	closed bool

	signal chan struct{} // capacity 1: "the queue changed"
	wg     sync.WaitGroup
}

func newGoroutinePoller(addr string) (Poller, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	p := &goroutinePoller{
		ln:     ln,
		events: queue.New(),
		conns:  make(map[Key]net.Conn),
		signal: make(chan struct{}, 1),
	}
	p.wg.Add(1)
	go p.acceptLoop()
	return p, nil
}

func (p *goroutinePoller) Addr() net.Addr { return p.ln.Addr() }

func (p *goroutinePoller) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			if util.IsHarmless(err) || p.isClosed() {
				return
			}
			// Out of descriptors and the like: back off briefly.
			time.Sleep(10 * time.Millisecond)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			conn.Close()
			return
		}
		p.next++
		key := p.next
		p.conns[key] = conn
		// Open is queued before the reader starts so it always comes
		// first for this key.
		p.events.Add(Event{Kind: EventOpen, Key: key, Remote: conn.RemoteAddr().String()})
		p.wg.Add(1)
		p.mu.Unlock()
		p.notify()

		go p.readLoop(key, conn)
	}
}

func (p *goroutinePoller) readLoop(key Key, conn net.Conn) {
	defer p.wg.Done()
	buf := util.GetBuf()
	defer util.PutBuf(buf)

	for {
		n, err := conn.Read(*buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, (*buf)[:n])
			p.push(Event{Kind: EventData, Key: key, Data: data})
		}
		if err != nil {
			p.mu.Lock()
			_, live := p.conns[key]
			p.mu.Unlock()
			if live {
				p.push(Event{Kind: EventClose, Key: key})
			}
			return
		}
	}
}

func (p *goroutinePoller) push(ev Event) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.events.Add(ev)
	p.mu.Unlock()
	p.notify()
}

func (p *goroutinePoller) notify() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *goroutinePoller) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *goroutinePoller) Wait(events []Event) ([]Event, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return events, bankerr.ErrClosed
		}
		for p.events.Length() > 0 {
			events = append(events, p.events.Remove().(Event))
		}
		woken := p.woken
		p.woken = false
		p.mu.Unlock()

		if woken || len(events) > 0 {
			return events, nil
		}
		<-p.signal
	}
}

func (p *goroutinePoller) Wake() error {
	p.mu.Lock()
	p.woken = true
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *goroutinePoller) conn(key Key) net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[key]
}

func (p *goroutinePoller) Write(key Key, b []byte) error {
	c := p.conn(key)
	if c == nil {
		return bankerr.ErrNotConnected
	}
	if err := c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := c.Write(b)
	return err
}

func (p *goroutinePoller) CloseConn(key Key) error {
	p.mu.Lock()
	c, ok := p.conns[key]
	delete(p.conns, key)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Close()
}

func (p *goroutinePoller) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.conns
	p.conns = make(map[Key]net.Conn)
	p.mu.Unlock()

	err := p.ln.Close()
	for _, c := range conns {
		c.Close()
	}
	p.notify()
	p.wg.Wait()
	return err
}
