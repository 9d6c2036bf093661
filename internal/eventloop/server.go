package eventloop

import (
	"bytes"
	"context"
	"net"

	"atmbank/internal/dispatch"
	bankerr "atmbank/internal/errors"
	"atmbank/internal/metrics"
	"atmbank/internal/protocol"
	"atmbank/internal/session"
	"atmbank/util"
)

// Server owns the sessions of every open connection and feeds their
// messages to a Dispatcher, one at a time.
type Server struct {
	poller     Poller
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Collector
	logger     *util.Logger

	sessions map[Key]session.Session
	seq      session.Sequence
}

// NewServer wires a poller to a dispatcher.  The poller is owned by the
// server from here on and is closed when Run returns.
func NewServer(p Poller, d *dispatch.Dispatcher, m *metrics.Collector, logger *util.Logger) *Server {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &Server{
		poller:     p,
		dispatcher: d,
		metrics:    m,
		logger:     logger,
		sessions:   make(map[Key]session.Session),
	}
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr { return s.poller.Addr() }

// Run serves until ctx is cancelled, then closes every connection and
// the listener and returns nil.  It returns an error only if the poller
// fails.
func (s *Server) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.poller.Wake() })
	defer stop()
	defer s.shutdown()

	s.logger.Info("listening on %s", s.Addr())

	events := make([]Event, 0, 64)
	for {
		if ctx.Err() != nil {
			return nil
		}
		var err error
		events, err = s.poller.Wait(events[:0])
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return bankerr.Wrap("poll", s.Addr().String(), err)
		}
		for i := range events {
			s.handle(events[i])
			events[i] = Event{}
		}
	}
}

func (s *Server) handle(ev Event) {
	switch ev.Kind {
	case EventOpen:
		sess := session.New(s.seq.Next(), ev.Remote)
		s.sessions[ev.Key] = sess
		s.metrics.ConnectionOpened()
		s.logger.Verbose("%s: connected from %s", sess.ID, sess.Remote)

	case EventData:
		sess, ok := s.sessions[ev.Key]
		if !ok {
			return
		}
		s.metrics.BytesReceived(int64(len(ev.Data)))
		// Line-framed input gets line-framed replies.
		lined := bytes.IndexByte(ev.Data, '\n') >= 0
		for _, msg := range protocol.Split(ev.Data) {
			var resp protocol.Response
			resp, sess = s.dispatcher.Handle(msg, sess)
			out := protocol.EncodeResponse(resp)
			if lined {
				out += "\n"
			}
			if err := s.poller.Write(ev.Key, []byte(out)); err != nil {
				s.logger.Verbose("%s: write: %v", sess.ID, err)
				s.metrics.RecordError(err.Error())
				s.sessions[ev.Key] = sess
				s.drop(ev.Key)
				return
			}
			s.metrics.BytesSent(int64(len(out)))
		}
		s.sessions[ev.Key] = sess

	case EventClose:
		s.drop(ev.Key)
	}
}

// drop ends a connection: the session's login is released before the
// socket is closed.
func (s *Server) drop(key Key) {
	sess, ok := s.sessions[key]
	if !ok {
		return
	}
	delete(s.sessions, key)
	s.dispatcher.Disconnect(sess)
	if err := s.poller.CloseConn(key); err != nil {
		s.logger.Debug("%s: close: %v", sess.ID, err)
	}
	s.metrics.ConnectionClosed()
	s.logger.Verbose("%s: disconnected", sess.ID)
}

func (s *Server) shutdown() {
	for key := range s.sessions {
		s.drop(key)
	}
	if err := s.poller.Close(); err != nil {
		s.logger.Debug("closing listener: %v", err)
	}
	s.logger.Info("server stopped")
}
