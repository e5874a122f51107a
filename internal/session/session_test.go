package session

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/cedricchevalier19/Storm/internal/player"
)

// fakePlayer is a test double satisfying player.Player: controls sent to it
// land on a channel the test can assert against, and it lets the test push
// synthetic events back into the session.
type fakePlayer struct {
	sent   chan player.Control
	events chan player.Event
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		sent:   make(chan player.Control, 16),
		events: make(chan player.Event, 16),
	}
}

func (f *fakePlayer) Send(c player.Control)       { f.sent <- c }
func (f *fakePlayer) Events() <-chan player.Event { return f.events }
func (f *fakePlayer) Close() error                { return nil }

func testLogger() *log.Logger {
	l := log.New(io.Discard)
	return l
}

func newTestSession(t *testing.T) (*Session, net.Conn, *fakePlayer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	plyr := newFakePlayer()
	cfg := Config{
		ServerIP:         net.ParseIP("127.0.0.1"),
		Name:             "kitchen",
		InitialBufferKiB: 32,
		DecoderCaps:      []string{"flc", "mp3"},
		MAC:              [6]byte{1, 2, 3, 4, 5, 6},
	}
	s := New(clientConn, cfg, plyr, testLogger())
	go func() {
		_ = s.Run()
	}()
	t.Cleanup(func() { s.Stop(); serverConn.Close() })
	return s, serverConn, plyr
}

// readFrame reads one length-prefixed frame off conn and returns its tag
// (the first 4 bytes of the payload) and the remaining payload bytes.
func readFrame(t *testing.T, conn net.Conn) (string, []byte) {
	t.Helper()
	var lenBuf [2]byte
	_, err := io.ReadFull(conn, lenBuf[:])
	require.NoError(t, err)
	length := binary.BigEndian.Uint16(lenBuf[:])
	payload := make([]byte, length)
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)
	return string(payload[0:4]), payload[4:]
}

func writeFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	_, err := conn.Write(append(lenBuf[:], payload...))
	require.NoError(t, err)
}

func strmFrame(cmd byte, fixed [23]byte, tail []byte) []byte {
	payload := make([]byte, 0, 5+len(fixed)+len(tail))
	payload = append(payload, []byte("strm")...)
	payload = append(payload, cmd)
	payload = append(payload, fixed[:]...)
	payload = append(payload, tail...)
	return payload
}

func TestScenario1_Handshake(t *testing.T) {
	_, serverConn, _ := newTestSession(t)

	tag, rest := readFrame(t, serverConn)
	require.Equal(t, "HELO", tag)

	// HELO carries the little-endian inner length before its fields.
	innerLen := binary.LittleEndian.Uint32(rest[0:4])
	fields := rest[4 : 4+innerLen]
	require.Equal(t, uint8(12), fields[0]) // device_id
	require.Equal(t, uint8(0), fields[1])  // revision

	caps := string(fields[2+6+16+2+8:])
	require.Contains(t, caps, "Model=Storm")
	require.Contains(t, caps, "flc")

	require.NoError(t, serverConn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	buf := make([]byte, 1)
	_, readErr := serverConn.Read(buf)
	require.Error(t, readErr, "no STAT should be emitted before the first server message")
}

func TestScenario2_StatusEcho(t *testing.T) {
	_, serverConn, _ := newTestSession(t)
	_, _ = readFrame(t, serverConn) // HELO

	var fixed [23]byte
	var timestampTail [4]byte
	binary.BigEndian.PutUint32(timestampTail[:], 0xDEADBEEF)
	writeFrame(t, serverConn, strmFrame('t', fixed, timestampTail[:]))

	tag, payload := readFrame(t, serverConn)
	require.Equal(t, "STAT", tag)
	require.Equal(t, "STMt", string(payload[0:4]))
	ts := binary.BigEndian.Uint32(payload[len(payload)-6 : len(payload)-2])
	require.Equal(t, uint32(0xDEADBEEF), ts)
}

func TestScenario3_StreamStart(t *testing.T) {
	_, serverConn, plyr := newTestSession(t)
	_, _ = readFrame(t, serverConn) // HELO

	var fixed [23]byte
	fixed[6] = 64                              // threshold at payload offset 11 (5 + 6)
	fixed[11] = 10                             // output_threshold at payload offset 16 (5 + 11)
	binary.BigEndian.PutUint32(fixed[13:17], 0) // replay_gain at payload offset 18 (5 + 13)
	binary.BigEndian.PutUint16(fixed[17:19], 9000)
	copy(fixed[19:23], net.ParseIP("10.0.0.5").To4())

	payload := strmFrame('s', fixed, nil)
	payload[5] = '1' // autostart, offset 5
	writeFrame(t, serverConn, payload)

	tag, statPayload := readFrame(t, serverConn)
	require.Equal(t, "STAT", tag)
	require.Equal(t, "STMc", string(statPayload[0:4]))

	ctrl := <-plyr.sent
	stream, ok := ctrl.(player.Stream)
	require.True(t, ok)
	require.True(t, stream.Autostart)
	require.Equal(t, uint32(64*1024), stream.Threshold)

	plyr.events <- player.StartEvent{}

	tag, statPayload = readFrame(t, serverConn)
	require.Equal(t, "STAT", tag)
	require.Equal(t, "STMs", string(statPayload[0:4]))

	require.NoError(t, serverConn.SetReadDeadline(time.Now().Add(700*time.Millisecond)))
	tag, statPayload = readFrame(t, serverConn)
	require.Equal(t, "STAT", tag)
	require.Equal(t, "STMt", string(statPayload[0:4]))
}

func TestScenario4_DelayedPause(t *testing.T) {
	_, serverConn, plyr := newTestSession(t)
	_, _ = readFrame(t, serverConn) // HELO

	var fixed [23]byte
	binary.BigEndian.PutUint32(fixed[0:4], 250)
	writeFrame(t, serverConn, strmFrame('p', fixed, nil))

	ctrl := <-plyr.sent
	pause, ok := ctrl.(player.PauseControl)
	require.True(t, ok)
	require.True(t, pause.Engaged)

	select {
	case ctrl := <-plyr.sent:
		t.Fatalf("unpause delivered too early: %#v", ctrl)
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case ctrl := <-plyr.sent:
		unpause, ok := ctrl.(player.UnpauseControl)
		require.True(t, ok)
		require.True(t, unpause.Engaged)
	case <-time.After(400 * time.Millisecond):
		t.Fatal("expected a delayed unpause control")
	}
}

func TestScenario5_UnpauseWithPastDeadline(t *testing.T) {
	_, serverConn, plyr := newTestSession(t)
	_, _ = readFrame(t, serverConn) // HELO

	// jiffies() counts milliseconds since the session was created, so
	// sleeping past the requested deadline is what makes it "past."
	const deadlineMillis = 5
	time.Sleep(50 * time.Millisecond)

	var fixed [23]byte
	binary.BigEndian.PutUint32(fixed[0:4], deadlineMillis)
	writeFrame(t, serverConn, strmFrame('u', fixed, nil))

	select {
	case ctrl := <-plyr.sent:
		unpause, ok := ctrl.(player.UnpauseControl)
		require.True(t, ok)
		require.True(t, unpause.Engaged)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected an immediate unpause for a past deadline")
	}
}

func TestScenario6_Redirect(t *testing.T) {
	s, serverConn, _ := newTestSession(t)
	_, _ = readFrame(t, serverConn) // HELO

	payload := make([]byte, 0, 8+2)
	payload = append(payload, []byte("serv")...)
	payload = append(payload, net.ParseIP("10.0.0.2").To4()...)
	payload = append(payload, []byte("g1")...)
	writeFrame(t, serverConn, payload)

	select {
	case redirect := <-s.RedirectCh():
		require.Equal(t, "10.0.0.2", redirect.IP.String())
		require.Equal(t, "g1", redirect.SyncGroupID)
		require.Equal(t, uint32(32), redirect.BufferSizeKiB)
	case <-time.After(time.Second):
		t.Fatal("expected a redirect")
	}
}
