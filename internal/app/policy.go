package app

import "github.com/dkeye/Coderoom/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickConnection
)

// Policy decides what happens to connections whose send buffers are
// full during a broadcast.
type Policy interface {
	OnBackPressure(room core.RoomService, sid core.ConnID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room core.RoomService, sid core.ConnID) BackpressureAction {
	return KickConnection
}
