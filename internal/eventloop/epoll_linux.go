//go:build linux

package eventloop

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"atmbank/util"
)

const (
	maxEvents      = 128
	writeTimeoutMs = 5000
)

// epollPoller is a level-triggered epoll(7) multiplexer over raw
// non-blocking sockets.  An eventfd shares the epoll set so Wake can
// interrupt epoll_wait.
type epollPoller struct {
	epfd   int
	lfd    int
	wakefd int
	addr   net.Addr

	conns map[int]struct{} // loop goroutine only
	raw   []unix.EpollEvent

	mu     sync.Mutex // guards closed against a concurrent Wake
	closed bool
}

func newEpollPoller(address string) (Poller, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}
	sa, family := toSockaddr(tcpAddr)

	lfd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	p := &epollPoller{epfd: -1, lfd: lfd, wakefd: -1, conns: make(map[int]struct{}),
		raw: make([]unix.EpollEvent, maxEvents)}

	if err := p.setup(sa); err != nil {
		p.release()
		return nil, err
	}
	return p, nil
}

func (p *epollPoller) setup(sa unix.Sockaddr) error {
	if err := unix.SetsockoptInt(p.lfd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("setsockopt: %w", err)
	}
	if err := unix.Bind(p.lfd, sa); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(p.lfd, unix.SOMAXCONN); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	local, err := unix.Getsockname(p.lfd)
	if err != nil {
		return fmt.Errorf("getsockname: %w", err)
	}
	p.addr = toNetAddr(local)

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll create: %w", err)
	}
	p.epfd = epfd
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("eventfd: %w", err)
	}
	p.wakefd = wakefd
	if err := p.watch(p.lfd, unix.EPOLLIN); err != nil {
		return err
	}
	return p.watch(p.wakefd, unix.EPOLLIN)
}

func (p *epollPoller) watch(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (p *epollPoller) Addr() net.Addr { return p.addr }

func (p *epollPoller) Wait(events []Event) ([]Event, error) {
	for {
		n, err := unix.EpollWait(p.epfd, p.raw, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return events, fmt.Errorf("epoll wait: %w", err)
		}

		woke := false
		for i := 0; i < n; i++ {
			fd := int(p.raw[i].Fd)
			switch fd {
			case p.wakefd:
				var b [8]byte
				_, _ = unix.Read(p.wakefd, b[:])
				woke = true
			case p.lfd:
				events = p.accept(events)
			default:
				events = p.read(fd, events)
			}
		}
		if woke || len(events) > 0 {
			return events, nil
		}
	}
}

// accept drains the listen backlog.
func (p *epollPoller) accept(events []Event) []Event {
	for {
		nfd, sa, err := unix.Accept4(p.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
		case unix.EINTR, unix.ECONNABORTED:
			continue
		default:
			// EAGAIN once the backlog is empty; anything else (EMFILE)
			// will be retried on the next readiness report.
			return events
		}
		if err := p.watch(nfd, unix.EPOLLIN|unix.EPOLLRDHUP); err != nil {
			unix.Close(nfd)
			continue
		}
		p.conns[nfd] = struct{}{}
		remote := ""
		if a := toNetAddr(sa); a != nil {
			remote = a.String()
		}
		events = append(events, Event{Kind: EventOpen, Key: Key(nfd), Remote: remote})
	}
}

// read performs one read of at most util.ReadBufSize bytes.  Anything
// left in the socket is reported again by the next epoll_wait.
func (p *epollPoller) read(fd int, events []Event) []Event {
	if _, ok := p.conns[fd]; !ok {
		return events
	}
	buf := util.GetBuf()
	defer util.PutBuf(buf)

	n, err := unix.Read(fd, *buf)
	if err == unix.EAGAIN || err == unix.EINTR {
		return events
	}
	if err != nil || n == 0 {
		// Stop watching now so a level-triggered hangup is not reported
		// twice before the loop closes the connection.
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		return append(events, Event{Kind: EventClose, Key: Key(fd)})
	}
	data := make([]byte, n)
	copy(data, (*buf)[:n])
	return append(events, Event{Kind: EventData, Key: Key(fd), Data: data})
}

func (p *epollPoller) Write(key Key, b []byte) error {
	fd := int(key)
	if _, ok := p.conns[fd]; !ok {
		return unix.EBADF
	}
	for len(b) > 0 {
		n, err := unix.Write(fd, b)
		switch err {
		case nil:
			b = b[n:]
		case unix.EINTR:
		case unix.EAGAIN:
			// Socket buffer full: wait until it drains.
			pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
			ready, err := unix.Poll(pfd, writeTimeoutMs)
			if err != nil && err != unix.EINTR {
				return err
			}
			if ready == 0 && err == nil {
				return unix.ETIMEDOUT
			}
		default:
			return err
		}
	}
	return nil
}

func (p *epollPoller) CloseConn(key Key) error {
	fd := int(key)
	if _, ok := p.conns[fd]; !ok {
		return nil
	}
	delete(p.conns, fd)
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return unix.Close(fd)
}

func (p *epollPoller) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	_, err := unix.Write(p.wakefd, b[:])
	if err == unix.EAGAIN {
		// Counter already pending.
		return nil
	}
	return err
}

func (p *epollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for fd := range p.conns {
		unix.Close(fd)
	}
	p.conns = nil
	return p.release()
}

func (p *epollPoller) release() error {
	var err error
	for _, fd := range []int{p.lfd, p.wakefd, p.epfd} {
		if fd < 0 {
			continue
		}
		if cerr := unix.Close(fd); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func toSockaddr(a *net.TCPAddr) (unix.Sockaddr, int) {
	if a.IP == nil || a.IP.To4() != nil {
		sa := &unix.SockaddrInet4{Port: a.Port}
		if a.IP != nil {
			copy(sa.Addr[:], a.IP.To4())
		}
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: a.Port}
	copy(sa.Addr[:], a.IP.To16())
	return sa, unix.AF_INET6
}

func toNetAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3]), Port: a.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	default:
		return nil
	}
}
