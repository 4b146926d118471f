package packetizer

import (
	"maps"
	"net"

	"spacenet/pkg/packet"

	"github.com/google/uuid"
)

// Session identifies the connection a packetizer serves.
type Session struct {
	ID     uuid.UUID
	Remote net.Addr
}

// NewSession creates a session with a fresh random identifier.
func NewSession(remote net.Addr) Session {
	return Session{ID: uuid.New(), Remote: remote}
}

func (s Session) String() string {
	if s.Remote == nil {
		return s.ID.String()
	}
	return s.ID.String() + "@" + s.Remote.String()
}

// Context is session-bound state handed to values while they are
// depacketized.
type Context interface {
	// CopyFor returns an independent clone of the context rebound to session.
	CopyFor(session Session) Context
}

// ContextPacketizable is implemented by values that need the session context
// to restore themselves, e.g. to resolve entity references. When present it
// is used instead of Depacketize.
type ContextPacketizable interface {
	packet.Packetizable
	DepacketizeContext(p *packet.Packet, ctx Context) error
}

// SessionContext is the stock Context: the bound session and a bag of
// values shared with the deserialized objects.
type SessionContext struct {
	session Session
	values  map[string]any
}

func NewSessionContext(session Session) *SessionContext {
	return &SessionContext{session: session, values: make(map[string]any)}
}

func (c *SessionContext) Session() Session { return c.session }

func (c *SessionContext) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *SessionContext) Set(key string, value any) {
	c.values[key] = value
}

// CopyFor clones the value bag; the values themselves are shared.
func (c *SessionContext) CopyFor(session Session) Context {
	return &SessionContext{session: session, values: maps.Clone(c.values)}
}
