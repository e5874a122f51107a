// Package protocol implements the SlimProto wire format: the binary framing
// between a player and its control server, and the typed messages it
// carries in each direction.
package protocol

import "net"

// ClientMessage is a message the player sends to the server.
type ClientMessage interface {
	clientTag() string
}

// Helo is the player's handshake, sent once at session start.
type Helo struct {
	DeviceID        uint8
	Revision        uint8
	MAC             [6]byte
	UUID            [16]byte
	WLANChannelList uint16
	BytesReceived   uint64
	Capabilities    string
}

func (Helo) clientTag() string { return "HELO" }

// Bye announces clean shutdown.
type Bye struct {
	Code uint8
}

func (Bye) clientTag() string { return "BYE!" }

// Stat is the omnibus status report; its payload is a StatData snapshot.
// Fields mirror spec.md §3.3/§6.1 exactly and are filled in by
// internal/statdata, not constructed by hand elsewhere.
type Stat struct {
	Event                  [4]byte
	NumCRLF                uint8
	MasInitialized         uint8
	MasMode                uint8
	BufferSize             uint32
	Fullness               uint32
	BytesReceived          uint64
	SignalStrength         uint16
	Jiffies                uint32
	OutputBufferSize       uint32
	OutputBufferFullness   uint32
	ElapsedSeconds         uint32
	Voltage                uint16
	ElapsedMilliseconds    uint32
	Timestamp              uint32
	ErrorCode              uint16
}

func (Stat) clientTag() string { return "STAT" }

// Name answers a Queryname request with the player's display name.
type Name struct {
	Name string
}

func (Name) clientTag() string { return "NAME" }

// ServerMessage is a message the player receives from the server.
type ServerMessage interface {
	serverTag() string
}

// Serv redirects the session to a different control server.
type Serv struct {
	IPAddress    net.IP
	SyncGroupID  string // empty if absent
}

func (Serv) serverTag() string { return "serv" }

// Status is a poll; the player replies with a timestamp-echoing STMt.
type Status struct {
	Timestamp uint32
}

func (Status) serverTag() string { return "strm_t" }

// Stream tells the player to begin fetching and decoding a stream.
type Stream struct {
	Autostart      byte // '0'|'1'|'2'|'3', per spec.md §6.1
	Threshold      uint32 // KiB
	OutputThreshold uint32
	ReplayGain     uint32
	ServerPort     uint16
	ServerIP       net.IP
	HTTPHeaders    string
}

func (Stream) serverTag() string { return "strm_s" }

// Gain sets left/right output gain.
type Gain struct {
	Left, Right uint32
}

func (Gain) serverTag() string { return "audg" }

// Enable toggles audio output.
type Enable struct {
	On bool
}

func (Enable) serverTag() string { return "aude" }

// Stop halts the current stream.
type Stop struct{}

func (Stop) serverTag() string { return "strm_q" }

// Skip requests the player jump forward/back by interval.
type Skip struct {
	Interval uint32
}

func (Skip) serverTag() string { return "strm_a" }

// Pause pauses playback; Millis is a duration in ms (0 = indefinite).
type Pause struct {
	Millis uint32
}

func (Pause) serverTag() string { return "strm_p" }

// Unpause resumes playback; Millis is an absolute jiffy deadline (0 = now).
type Unpause struct {
	Millis uint32
}

func (Unpause) serverTag() string { return "strm_u" }

// Setname sets the player's display name.
type Setname struct {
	Name string
}

func (Setname) serverTag() string { return "setd" }

// Queryname asks the player to report its name via a NAME frame.
type Queryname struct{}

func (Queryname) serverTag() string { return "setd_query" }

// Unknownsetd is a setd sub-command this client doesn't recognize.
type Unknownsetd struct {
	ID uint8
}

func (Unknownsetd) serverTag() string { return "setd_unknown" }

// Unrecognised is any frame whose tag (or strm sub-command) isn't known.
type Unrecognised struct {
	Tag string
}

func (Unrecognised) serverTag() string { return "unrecognised" }

// Error marks a frame that decoded its tag but failed to parse its payload.
// Decode never returns this variant: it reports a malformed known tag as an
// error wrapping ErrMalformedFrame. A session that receives this variant
// treats it as fatal (spec.md §4.4).
type Error struct {
	Tag string
}

func (Error) serverTag() string { return "error" }
