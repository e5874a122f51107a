// Package player defines the Player collaborator contract (spec.md §6.3):
// the boundary between the protocol engine and the audio output pipeline.
// Decoding an actual stream format is out of scope (spec.md §1); this
// package ships the contract plus a NullPlayer and a minimal PortAudio-
// backed reference implementation that exercises the contract end to end
// without performing real decode.
package player

import "net"

// Control is a command the session dispatches to the Player (spec.md §6.3).
type Control interface {
	isControl()
}

// Stream tells the player to begin fetching/decoding the named stream.
type Stream struct {
	Autostart       bool
	Threshold       uint32 // bytes
	OutputThreshold uint32
	ReplayGain      uint32
	ServerPort      uint16
	ServerIP        net.IP
	ControlIP       net.IP // the originating control server, echoed back
	HTTPHeaders     string
}

func (Stream) isControl() {}

// StopControl halts the current stream.
type StopControl struct{}

func (StopControl) isControl() {}

// PauseControl pauses output. Engaged is true for a timed pause, which the
// session later lifts with a scheduled UnpauseControl, and false for a pause
// with no set end (a server Pause of 0 ms).
type PauseControl struct {
	Engaged bool
}

func (PauseControl) isControl() {}

// UnpauseControl resumes output. Engaged is true for a resume the session
// scheduled or resolved from a deadline (the end of a timed pause, or a
// server Unpause with a nonzero jiffy deadline), and false for a server
// Unpause of 0, which resumes at once.
type UnpauseControl struct {
	Engaged bool
}

func (UnpauseControl) isControl() {}

// GainControl sets left/right output gain.
type GainControl struct {
	Left, Right uint32
}

func (GainControl) isControl() {}

// EnableControl toggles audio output.
type EnableControl struct {
	On bool
}

func (EnableControl) isControl() {}

// SkipControl requests the player jump by interval.
type SkipControl struct {
	Interval uint32
}

func (SkipControl) isControl() {}

// Event is an asynchronous notification the Player sends back to the
// session (spec.md §4.3.3).
type Event interface {
	isEvent()
}

type FlushedEvent struct{}

func (FlushedEvent) isEvent() {}

type PausedEvent struct{}

func (PausedEvent) isEvent() {}

type UnpausedEvent struct{}

func (UnpausedEvent) isEvent() {}

type EosEvent struct{}

func (EosEvent) isEvent() {}

type EstablishedEvent struct{}

func (EstablishedEvent) isEvent() {}

type HeadersEvent struct {
	CRLFCount uint8
}

func (HeadersEvent) isEvent() {}

type ErrorEvent struct {
	Err error
}

func (ErrorEvent) isEvent() {}

type StartEvent struct{}

func (StartEvent) isEvent() {}

type StreamDataEvent struct {
	PositionMillis       uint32
	Fullness             uint32
	OutputBufferFullness uint32
}

func (StreamDataEvent) isEvent() {}

type BufSizeEvent struct {
	Bytes uint64
}

func (BufSizeEvent) isEvent() {}

type OverrunEvent struct{}

func (OverrunEvent) isEvent() {}

// Player is the audio output collaborator. Send is fire-and-forget per
// spec.md §5; implementations must never block the caller for longer than
// it takes to enqueue the control. Events() is the player's outbound
// notification stream, read by the session's event loop.
type Player interface {
	Send(Control)
	Events() <-chan Event
	Close() error
}
