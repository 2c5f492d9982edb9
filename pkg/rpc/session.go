package rpc

import (
	"net"
)

type SessionConfig struct {
	ConnConfig
}

// Session is the inbound connection variant, created by an external acceptor
// around an accepted socket. shared is server wide state handed to every
// dispatch through the context; it is not interpreted here.
type Session struct {
	*Conn
	shared any
}

// NewSession fails with ErrNilConn when nc is nil.
func NewSession(nc net.Conn, shared any, conf SessionConfig) (*Session, error) {
	if nc == nil {
		return nil, ErrNilConn
	}
	s := &Session{
		Conn:   newConn(RoleSession, conf.ConnConfig, shared),
		shared: shared,
	}
	if err := s.attach(nc); err != nil {
		return nil, err
	}
	return s, nil
}

// NetConn returns the accepted socket so the acceptor can reclaim it.
func (s *Session) NetConn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nc
}

func (s *Session) Shared() any {
	return s.shared
}
