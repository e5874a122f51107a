package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// ErrMalformedFrame is wrapped into the error returned by Decode when a
// frame's tag is recognized but its payload doesn't parse. Per spec.md
// §4.4 this is fatal to the session.
var ErrMalformedFrame = errors.New("protocol: malformed frame")

// Decode attempts to parse one ServerMessage from the front of buf.
//
// If buf doesn't yet hold a complete frame, Decode returns (nil, 0, nil) —
// the caller should buffer more bytes and retry. Otherwise it returns the
// parsed message and the number of bytes consumed from buf (always the
// full frame, even on a parse error, so the caller can still advance past
// the bad frame before terminating the session).
func Decode(buf []byte) (ServerMessage, int, error) {
	if len(buf) < 2 {
		return nil, 0, nil
	}

	length := binary.BigEndian.Uint16(buf[0:2])
	total := int(length) + 2
	if len(buf) < total {
		return nil, 0, nil
	}

	payload := buf[2:total]
	if len(payload) < 4 {
		return nil, total, fmt.Errorf("%w: frame shorter than a tag", ErrMalformedFrame)
	}

	tag := string(payload[0:4])

	msg, err := decodeTag(tag, payload)
	if err != nil {
		return nil, total, fmt.Errorf("%w: tag %q: %v", ErrMalformedFrame, tag, err)
	}

	return msg, total, nil
}

func decodeTag(tag string, payload []byte) (ServerMessage, error) {
	switch tag {
	case "serv":
		return decodeServ(payload)
	case "strm":
		return decodeStrm(payload)
	case "aude":
		return decodeAude(payload)
	case "audg":
		return decodeAudg(payload)
	case "setd":
		return decodeSetd(payload)
	default:
		return Unrecognised{Tag: tag}, nil
	}
}

func decodeServ(payload []byte) (ServerMessage, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("serv: need 8 bytes, got %d", len(payload))
	}
	ip := net.IPv4(payload[4], payload[5], payload[6], payload[7])
	var syncGroup string
	if len(payload) > 8 {
		syncGroup = string(payload[8:])
	}
	return Serv{IPAddress: ip, SyncGroupID: syncGroup}, nil
}

// strm sub-commands carry a common fixed-width header (the reference
// server's layout) before any variable tail. Offsets below follow the
// canonical SlimProto strm payload: cmd, autostart, format, pcm_sample_size,
// pcm_sample_rate, pcm_channels, pcm_endian, threshold, spdif_enable,
// transition_period, transition_type, flags, output_threshold, reserved,
// replay_gain(4), server_port(2), server_ip(4), then a variable tail.
const (
	strmCmdOffset             = 4
	strmAutostartOffset       = 5
	strmThresholdOffset       = 11
	strmOutputThresholdOffset = 16
	strmReplayGainOffset      = 18
	strmServerPortOffset      = 22
	strmServerIPOffset        = 24
	strmFixedHeaderLen        = 28
	strmMillisOffset          = 5 // for p/u/a sub-commands: cmd(1) then millis/interval(u32 BE)
)

func decodeStrm(payload []byte) (ServerMessage, error) {
	if len(payload) <= strmCmdOffset {
		return nil, fmt.Errorf("strm: missing sub-command")
	}
	cmd := payload[strmCmdOffset]

	switch cmd {
	case 't':
		return decodeStrmStatus(payload)
	case 's':
		return decodeStrmStream(payload)
	case 'q':
		return Stop{}, nil
	case 'p':
		millis, err := strmMillis(payload)
		if err != nil {
			return nil, err
		}
		return Pause{Millis: millis}, nil
	case 'u':
		millis, err := strmMillis(payload)
		if err != nil {
			return nil, err
		}
		return Unpause{Millis: millis}, nil
	case 'a':
		interval, err := strmMillis(payload)
		if err != nil {
			return nil, err
		}
		return Skip{Interval: interval}, nil
	default:
		return Unrecognised{Tag: fmt.Sprintf("strm_%c", cmd)}, nil
	}
}

func strmMillis(payload []byte) (uint32, error) {
	if len(payload) < strmMillisOffset+4 {
		return 0, fmt.Errorf("strm: need %d bytes for millis/interval, got %d", strmMillisOffset+4, len(payload))
	}
	return binary.BigEndian.Uint32(payload[strmMillisOffset : strmMillisOffset+4]), nil
}

// decodeStrmStatus parses 'strm t'. Only the server timestamp, at the fixed
// offset where the variable tail would otherwise begin, is consumed — see
// DESIGN.md's Open Question notes.
func decodeStrmStatus(payload []byte) (ServerMessage, error) {
	if len(payload) < strmFixedHeaderLen+4 {
		return nil, fmt.Errorf("strm t: need %d bytes, got %d", strmFixedHeaderLen+4, len(payload))
	}
	ts := binary.BigEndian.Uint32(payload[strmFixedHeaderLen : strmFixedHeaderLen+4])
	return Status{Timestamp: ts}, nil
}

func decodeStrmStream(payload []byte) (ServerMessage, error) {
	if len(payload) < strmFixedHeaderLen {
		return nil, fmt.Errorf("strm s: need at least %d bytes, got %d", strmFixedHeaderLen, len(payload))
	}
	autostart := payload[strmAutostartOffset]
	threshold := uint32(payload[strmThresholdOffset])
	outputThreshold := uint32(payload[strmOutputThresholdOffset])
	replayGain := binary.BigEndian.Uint32(payload[strmReplayGainOffset : strmReplayGainOffset+4])
	serverPort := binary.BigEndian.Uint16(payload[strmServerPortOffset : strmServerPortOffset+2])
	serverIP := net.IPv4(
		payload[strmServerIPOffset], payload[strmServerIPOffset+1],
		payload[strmServerIPOffset+2], payload[strmServerIPOffset+3],
	)
	var headers string
	if len(payload) > strmFixedHeaderLen {
		headers = string(payload[strmFixedHeaderLen:])
	}
	return Stream{
		Autostart:       autostart,
		Threshold:       threshold,
		OutputThreshold: outputThreshold,
		ReplayGain:      replayGain,
		ServerPort:      serverPort,
		ServerIP:        serverIP,
		HTTPHeaders:     headers,
	}, nil
}

// AutostartBool reports whether the server-requested autostart policy means
// "begin playback immediately on buffer fill" versus "wait for Unpause."
// Per the canonical SlimProto encoding, odd values ('1', '3') mean autostart.
func (s Stream) AutostartBool() bool {
	return s.Autostart == '1' || s.Autostart == '3'
}

func decodeAude(payload []byte) (ServerMessage, error) {
	if len(payload) < 5 {
		return nil, fmt.Errorf("aude: need 5 bytes, got %d", len(payload))
	}
	return Enable{On: payload[4] != 0}, nil
}

func decodeAudg(payload []byte) (ServerMessage, error) {
	if len(payload) < 12 {
		return nil, fmt.Errorf("audg: need 12 bytes, got %d", len(payload))
	}
	left := binary.BigEndian.Uint32(payload[4:8])
	right := binary.BigEndian.Uint32(payload[8:12])
	return Gain{Left: left, Right: right}, nil
}

func decodeSetd(payload []byte) (ServerMessage, error) {
	if len(payload) < 5 {
		return nil, fmt.Errorf("setd: need at least 5 bytes, got %d", len(payload))
	}
	id := payload[4]
	if id != 0 {
		return Unknownsetd{ID: id}, nil
	}
	if len(payload) > 5 {
		return Setname{Name: string(payload[5:])}, nil
	}
	return Queryname{}, nil
}

// Encode renders a ClientMessage as a complete frame: 2-byte big-endian
// length prefix covering everything after it, 4 ASCII tag bytes, then the
// tag-specific payload. HELO alone carries the historical second,
// little-endian length prefix between the tag and its payload (spec.md §9).
func Encode(msg ClientMessage) []byte {
	switch m := msg.(type) {
	case Helo:
		return encodeHelo(m)
	case Bye:
		return encodeBye(m)
	case Stat:
		return encodeStat(m)
	case Name:
		return encodeName(m)
	default:
		panic(fmt.Sprintf("protocol: Encode: unknown ClientMessage %T", msg))
	}
}

func encodeHelo(m Helo) []byte {
	fields := make([]byte, 0, 34+len(m.Capabilities))
	fields = append(fields, m.DeviceID, m.Revision)
	fields = append(fields, m.MAC[:]...)
	fields = append(fields, m.UUID[:]...)
	fields = appendUint16(fields, m.WLANChannelList)
	fields = appendUint64(fields, m.BytesReceived)
	fields = append(fields, []byte(m.Capabilities)...)

	frame := make([]byte, 0, 2+4+4+len(fields))
	frame = appendUint16(frame, uint16(4+4+len(fields)))
	frame = append(frame, []byte(m.clientTag())...)
	frame = appendUint32LE(frame, uint32(len(fields)))
	frame = append(frame, fields...)
	return frame
}

func encodeBye(m Bye) []byte {
	return frame(m.clientTag(), []byte{m.Code})
}

func encodeStat(m Stat) []byte {
	payload := make([]byte, 0, 53)
	payload = append(payload, m.Event[:]...)
	payload = append(payload, m.NumCRLF, m.MasInitialized, m.MasMode)
	payload = appendUint32(payload, m.BufferSize)
	payload = appendUint32(payload, m.Fullness)
	payload = appendUint64(payload, m.BytesReceived)
	payload = appendUint16(payload, m.SignalStrength)
	payload = appendUint32(payload, m.Jiffies)
	payload = appendUint32(payload, m.OutputBufferSize)
	payload = appendUint32(payload, m.OutputBufferFullness)
	payload = appendUint32(payload, m.ElapsedSeconds)
	payload = appendUint16(payload, m.Voltage)
	payload = appendUint32(payload, m.ElapsedMilliseconds)
	payload = appendUint32(payload, m.Timestamp)
	payload = appendUint16(payload, m.ErrorCode)
	return frame(m.clientTag(), payload)
}

func encodeName(m Name) []byte {
	return frame(m.clientTag(), []byte(m.Name))
}

func frame(tag string, payload []byte) []byte {
	out := make([]byte, 0, 2+4+len(payload))
	out = appendUint16(out, uint16(4+len(payload)))
	out = append(out, []byte(tag)...)
	out = append(out, payload...)
	return out
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32LE(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
