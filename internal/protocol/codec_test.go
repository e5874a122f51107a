package protocol

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecode_NeedsMoreBytes(t *testing.T) {
	msg, n, err := Decode([]byte{0x00})
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, 0, n)

	msg, n, err = Decode([]byte{0x00, 0x05, 's', 'e', 'r'})
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, 0, n)
}

func TestDecode_Serv(t *testing.T) {
	payload := append([]byte("serv"), 10, 0, 0, 2)
	payload = append(payload, []byte("syncgroup1")...)
	buf := appendUint16(nil, uint16(len(payload)))
	buf = append(buf, payload...)

	msg, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	serv, ok := msg.(Serv)
	require.True(t, ok)
	assert.True(t, serv.IPAddress.Equal(net.IPv4(10, 0, 0, 2)))
	assert.Equal(t, "syncgroup1", serv.SyncGroupID)
}

func TestDecode_StrmStatusEchoesTimestamp(t *testing.T) {
	payload := make([]byte, strmFixedHeaderLen+4)
	copy(payload, "strm")
	payload[strmCmdOffset] = 't'
	appendUint32At(payload, strmFixedHeaderLen, 0xDEADBEEF)

	buf := appendUint16(nil, uint16(len(payload)))
	buf = append(buf, payload...)

	msg, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	status, ok := msg.(Status)
	require.True(t, ok)
	assert.Equal(t, uint32(0xDEADBEEF), status.Timestamp)
}

func TestDecode_StrmStreamFields(t *testing.T) {
	payload := make([]byte, strmFixedHeaderLen)
	copy(payload, "strm")
	payload[strmCmdOffset] = 's'
	payload[strmAutostartOffset] = '1'
	payload[strmThresholdOffset] = 64
	payload[strmOutputThresholdOffset] = 10
	appendUint32At(payload, strmReplayGainOffset, 0)
	appendUint16At(payload, strmServerPortOffset, 9000)
	payload[strmServerIPOffset] = 192
	payload[strmServerIPOffset+1] = 168
	payload[strmServerIPOffset+2] = 1
	payload[strmServerIPOffset+3] = 50
	payload = append(payload, []byte("Host: example\r\n")...)

	buf := appendUint16(nil, uint16(len(payload)))
	buf = append(buf, payload...)

	msg, _, err := Decode(buf)
	require.NoError(t, err)

	stream, ok := msg.(Stream)
	require.True(t, ok)
	assert.Equal(t, uint32(64), stream.Threshold)
	assert.True(t, stream.AutostartBool())
	assert.True(t, stream.ServerIP.Equal(net.IPv4(192, 168, 1, 50)))
	assert.Equal(t, "Host: example\r\n", stream.HTTPHeaders)
}

func TestDecode_UnrecognisedTag(t *testing.T) {
	payload := []byte("zzzz")
	buf := appendUint16(nil, uint16(len(payload)))
	buf = append(buf, payload...)

	msg, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, Unrecognised{Tag: "zzzz"}, msg)
}

func TestDecode_MalformedKnownTagIsFatal(t *testing.T) {
	payload := []byte("serv") // too short: no IP bytes
	buf := appendUint16(nil, uint16(len(payload)))
	buf = append(buf, payload...)

	msg, n, err := Decode(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Nil(t, msg)
	assert.Equal(t, len(buf), n, "a malformed-but-complete frame is still fully consumed")
}

func TestEncode_Helo_HasInnerLittleEndianLength(t *testing.T) {
	helo := Helo{
		DeviceID:     12,
		Revision:     0,
		Capabilities: "Model=Storm",
	}
	buf := Encode(helo)

	outerLen := int(buf[0])<<8 | int(buf[1])
	assert.Equal(t, len(buf)-2, outerLen)
	assert.Equal(t, "HELO", string(buf[2:6]))

	innerLen := int(buf[6]) | int(buf[7])<<8 | int(buf[8])<<16 | int(buf[9])<<24
	assert.Equal(t, len(buf)-10, innerLen)
}

func TestEncode_Bye(t *testing.T) {
	buf := Encode(Bye{Code: 0})
	assert.Equal(t, []byte{0x00, 0x05, 'B', 'Y', 'E', '!', 0x00}, buf)
}

func TestRoundTrip_StatElapsedInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seconds := rapid.Uint32Range(0, 1<<20).Draw(t, "seconds")
		stat := Stat{
			Event:               [4]byte{'S', 'T', 'M', 't'},
			ElapsedSeconds:      seconds,
			ElapsedMilliseconds: seconds * 1000,
		}
		buf := Encode(stat)
		assert.True(t, len(buf) > 0)
		// Read the fields back off the wire: elapsed_seconds and
		// elapsed_milliseconds sit at frame offsets 43 and 49.
		encodedSeconds := binary.BigEndian.Uint32(buf[43:47])
		encodedMillis := binary.BigEndian.Uint32(buf[49:53])
		assert.Equal(t, encodedSeconds, encodedMillis/1000)
	})
}

func TestDecode_ByteSlicingYieldsSameMessages(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ip := net.IPv4(10, 0, 0, byte(rapid.IntRange(1, 250).Draw(t, "host")))
		msgs := []ServerMessage{
			Serv{IPAddress: ip},
			Status{Timestamp: rapid.Uint32().Draw(t, "ts")},
		}

		var wire []byte
		for _, m := range msgs {
			wire = append(wire, encodeServerMessageForTest(t, m)...)
		}

		var split int
		if len(wire) > 1 {
			split = rapid.IntRange(0, len(wire)).Draw(t, "split")
		}

		var got []ServerMessage
		var buf []byte
		buf = append(buf, wire[:split]...)
		feed := wire[split:]

		for i := 0; i <= len(feed); i++ {
			if i > 0 {
				buf = append(buf, feed[i-1:i]...)
			}
			for {
				msg, n, err := Decode(buf)
				require.NoError(t, err)
				if n == 0 {
					break
				}
				got = append(got, msg)
				buf = buf[n:]
			}
		}

		assert.Equal(t, msgs, got)
	})
}

// encodeServerMessageForTest builds wire bytes for server-originated
// messages, which production code never needs to encode (only the server
// does), purely so the round-trip property test can synthesize input.
func encodeServerMessageForTest(t *rapid.T, msg ServerMessage) []byte {
	t.Helper()
	switch m := msg.(type) {
	case Serv:
		payload := append([]byte("serv"), m.IPAddress.To4()...)
		payload = append(payload, []byte(m.SyncGroupID)...)
		buf := appendUint16(nil, uint16(len(payload)))
		return append(buf, payload...)
	case Status:
		payload := make([]byte, strmFixedHeaderLen+4)
		copy(payload, "strm")
		payload[strmCmdOffset] = 't'
		appendUint32At(payload, strmFixedHeaderLen, m.Timestamp)
		buf := appendUint16(nil, uint16(len(payload)))
		return append(buf, payload...)
	default:
		t.Fatalf("unsupported message in test helper: %T", msg)
		return nil
	}
}

func appendUint32At(b []byte, offset int, v uint32) {
	b[offset] = byte(v >> 24)
	b[offset+1] = byte(v >> 16)
	b[offset+2] = byte(v >> 8)
	b[offset+3] = byte(v)
}

func appendUint16At(b []byte, offset int, v uint16) {
	b[offset] = byte(v >> 8)
	b[offset+1] = byte(v)
}
