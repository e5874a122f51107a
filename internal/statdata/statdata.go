// Package statdata accumulates per-session playback state and renders it
// into outbound STAT frames, per spec.md §3.3/§4.2.
package statdata

import (
	"time"

	"github.com/cedricchevalier19/Storm/internal/protocol"
)

// Recognized event tags (spec.md §4.2).
const (
	EventConnect          = "STMc"
	EventEstablished      = "STMe"
	EventHeaders          = "STMh"
	EventPlaybackStarted  = "STMs"
	EventHeartbeat        = "STMt"
	EventPaused           = "STMp"
	EventResumed          = "STMr"
	EventEndOfStream      = "STMd"
	EventFlushed          = "STMf"
	EventDecodeError      = "STMn"
	EventBufferThreshold  = "STMl"
	EventReserved         = "STMo"
)

// StatData is the playback-state accumulator described in spec.md §3.3.
// It is owned exclusively by a single session.Session; callers never need
// to synchronize access to it.
type StatData struct {
	creationTime time.Time

	numCRLF                uint8
	bufferSize             uint32 // KiB, non-decreasing within a session
	fullness               uint32
	bytesReceived          uint64 // wraps modulo 2^64
	outputBufferSize       uint32
	outputBufferFullness   uint32
	elapsedSeconds         uint32
	elapsedMilliseconds    uint32
	timestamp              uint32
}

// New creates a StatData anchored to now for jiffies() computation.
func New(creationTime time.Time) *StatData {
	return &StatData{creationTime: creationTime}
}

// Jiffies is the monotonic millisecond counter since creation, mod 2^32.
func (s *StatData) Jiffies(now time.Time) uint32 {
	return uint32(now.Sub(s.creationTime).Milliseconds())
}

// SetBufferSize raises buffer_size to the max of its current value and kib,
// preserving the non-decreasing invariant (spec.md §3.3).
func (s *StatData) SetBufferSize(kib uint32) {
	if kib > s.bufferSize {
		s.bufferSize = kib
	}
}

// BufferSize returns the current buffer size in KiB.
func (s *StatData) BufferSize() uint32 { return s.bufferSize }

// ResetForStream clears the fields a new Stream command resets (spec.md
// §4.3.2): elapsed position, input fullness, output fullness, CRLF count.
func (s *StatData) ResetForStream() {
	s.elapsedSeconds = 0
	s.elapsedMilliseconds = 0
	s.fullness = 0
	s.outputBufferFullness = 0
	s.numCRLF = 0
}

// SetHeaderCRLFCount records the CR/LF count observed in the last HTTP
// header block (STMh).
func (s *StatData) SetHeaderCRLFCount(n uint8) { s.numCRLF = n }

// SetTimestamp stores the echo value for the next STMt (from a server
// Status poll).
func (s *StatData) SetTimestamp(ts uint32) { s.timestamp = ts }

// AddBytesReceived wraps n into the bytes_received counter modulo 2^64.
func (s *StatData) AddBytesReceived(n uint64) { s.bytesReceived += n }

// SetPosition updates elapsed time and fullness from a player StreamData
// event (spec.md §4.3.3).
func (s *StatData) SetPosition(positionMillis uint32, fullness, outputBufferFullness uint32) {
	s.elapsedMilliseconds = positionMillis
	s.elapsedSeconds = positionMillis / 1000
	s.fullness = fullness
	s.outputBufferFullness = outputBufferFullness
}

// MakeStatMessage snapshots the current fields into a Stat frame tagged
// with event. jiffies is recomputed from now (spec.md §4.2).
func (s *StatData) MakeStatMessage(event string, now time.Time) protocol.Stat {
	var tag [4]byte
	copy(tag[:], event)

	return protocol.Stat{
		Event:                tag,
		NumCRLF:              s.numCRLF,
		MasInitialized:       0,
		MasMode:              0,
		BufferSize:           s.bufferSize,
		Fullness:             s.fullness,
		BytesReceived:        s.bytesReceived,
		SignalStrength:       0xFFFF,
		Jiffies:              s.Jiffies(now),
		OutputBufferSize:     s.outputBufferSize,
		OutputBufferFullness: s.outputBufferFullness,
		ElapsedSeconds:       s.elapsedSeconds,
		Voltage:              0,
		ElapsedMilliseconds:  s.elapsedMilliseconds,
		Timestamp:            s.timestamp,
		ErrorCode:            0,
	}
}
