package core

// memberSession implements MemberSession by pairing connection meta
// with its transport.
type memberSession struct {
	conn   *ActiveConnection
	signal SignalConnection
}

func NewMemberSession(conn *ActiveConnection, signal SignalConnection) MemberSession {
	return &memberSession{conn: conn, signal: signal}
}

func (m *memberSession) Conn() *ActiveConnection  { return m.conn }
func (m *memberSession) Signal() SignalConnection { return m.signal }
