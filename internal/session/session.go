// Package session implements the SlimProto session actor (spec.md §4.3,
// §4.4, §5): the component that owns a single TCP control connection,
// dispatches server messages, bridges to the Player collaborator, and
// renders status reports.
package session

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cedricchevalier19/Storm/internal/player"
	"github.com/cedricchevalier19/Storm/internal/protocol"
	"github.com/cedricchevalier19/Storm/internal/statdata"
)

// Config is the immutable configuration a Session is constructed with.
type Config struct {
	ServerIP         net.IP
	Name             string
	SyncGroupID      string
	InitialBufferKiB uint32
	DecoderCaps      []string
	MAC              [6]byte
}

// Redirect carries the information a `serv` frame hands to the bootstrap
// component so it can spawn the successor session (spec.md §4.3.2, §4.5).
type Redirect struct {
	IP            net.IP
	SyncGroupID   string
	Name          string
	BufferSizeKiB uint32
}

// Session is the actor described in spec.md §4.3. All mutable state below
// is touched only from the goroutine running Run, so none of it needs a
// lock — the single-handler-at-a-time guarantee spec.md §5 calls for.
type Session struct {
	conn   net.Conn
	cfg    Config
	player player.Player
	logger *log.Logger

	out     *outboundQueue
	actions chan func(*Session)

	redirectCh chan Redirect
	stopOnce   sync.Once
	stopCh     chan struct{}

	stat         *statdata.StatData
	creationTime time.Time
	name         string
	autostart    bool
}

// New constructs a Session bound to conn. Call Run to start it.
func New(conn net.Conn, cfg Config, plyr player.Player, logger *log.Logger) *Session {
	now := time.Now()
	return &Session{
		conn:         conn,
		cfg:          cfg,
		player:       plyr,
		logger:       logger,
		out:          newOutboundQueue(),
		actions:      make(chan func(*Session), 16),
		redirectCh:   make(chan Redirect, 1),
		stopCh:       make(chan struct{}),
		stat:         statdataWithInitialBuffer(now, cfg.InitialBufferKiB),
		creationTime: now,
		name:         cfg.Name,
	}
}

func statdataWithInitialBuffer(now time.Time, kib uint32) *statdata.StatData {
	s := statdata.New(now)
	s.SetBufferSize(kib)
	return s
}

// RedirectCh yields a Redirect exactly once if the server sends a `serv`
// frame; the bootstrap component reads it to spawn the successor session.
func (s *Session) RedirectCh() <-chan Redirect { return s.redirectCh }

// Stop requests a graceful shutdown: a Bye(0) is sent before the transport
// closes (spec.md §4.3.4). Safe to call more than once or concurrently.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Run drives the session to completion: it emits HELO, then dispatches
// server messages, player events, and scheduled actions in arrival order
// until a fatal error, an explicit Stop, or a server redirect ends it.
func (s *Session) Run() error {
	defer s.conn.Close()
	defer s.out.close()

	writerDone := make(chan struct{})
	go func() {
		s.writeLoop()
		close(writerDone)
	}()

	decoded := make(chan decodedMessage, 8)
	go s.readLoop(decoded)

	s.emit(s.buildHelo())

	playerEvents := s.player.Events()

	for {
		select {
		case <-s.stopCh:
			s.sendBye()
			// Let the writer drain the queue (Bye included) before the
			// deferred close; a stalled peer only delays this by a second.
			_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			s.out.close()
			<-writerDone
			return nil

		case d, ok := <-decoded:
			if !ok {
				return nil
			}
			if d.err != nil {
				s.logger.Error("fatal protocol error, terminating session", "err", d.err)
				return d.err
			}
			if done := s.handleServerMessage(d.msg); done {
				return nil
			}

		case ev, ok := <-playerEvents:
			if !ok {
				playerEvents = nil
				continue
			}
			s.handlePlayerEvent(ev)

		case action := <-s.actions:
			action(s)
		}
	}
}

func (s *Session) buildHelo() protocol.Helo {
	caps := buildCapabilities(s.cfg.DecoderCaps, s.name, s.cfg.SyncGroupID)
	return protocol.Helo{
		DeviceID:        12,
		Revision:        0,
		MAC:             s.cfg.MAC,
		UUID:            [16]byte{},
		WLANChannelList: 0,
		BytesReceived:   0,
		Capabilities:    caps,
	}
}

func (s *Session) sendBye() {
	// Best-effort: if the write fails, proceed to close (spec.md §4.3.4).
	s.emit(protocol.Bye{Code: 0})
}

func (s *Session) emit(msg protocol.ClientMessage) {
	s.out.push(protocol.Encode(msg))
}

func (s *Session) emitStat(event string) {
	s.emit(s.stat.MakeStatMessage(event, time.Now()))
}

func (s *Session) scheduleAfter(d time.Duration, fn func(*Session)) {
	time.AfterFunc(d, func() {
		select {
		case s.actions <- fn:
		default:
			// Timer errors are silently dropped (spec.md §4.4): the
			// server's next Status poll restores correct state.
		}
	})
}

// handleServerMessage implements spec.md §4.3.2. It returns true when the
// session should terminate (a `serv` redirect was dispatched).
func (s *Session) handleServerMessage(msg protocol.ServerMessage) bool {
	switch m := msg.(type) {
	case protocol.Serv:
		s.redirectCh <- Redirect{
			IP:            m.IPAddress,
			SyncGroupID:   m.SyncGroupID,
			Name:          s.name,
			BufferSizeKiB: s.stat.BufferSize(),
		}
		return true

	case protocol.Status:
		s.stat.SetTimestamp(m.Timestamp)
		s.emitStat(statdata.EventHeartbeat)

	case protocol.Stream:
		s.handleStream(m)

	case protocol.Gain:
		s.player.Send(player.GainControl{Left: m.Left, Right: m.Right})

	case protocol.Enable:
		s.player.Send(player.EnableControl{On: m.On})

	case protocol.Stop:
		s.player.Send(player.StopControl{})

	case protocol.Skip:
		s.player.Send(player.SkipControl{Interval: m.Interval})

	case protocol.Pause:
		s.handlePause(m.Millis)

	case protocol.Unpause:
		s.handleUnpause(m.Millis)

	case protocol.Setname:
		s.name = m.Name

	case protocol.Queryname:
		s.emit(protocol.Name{Name: s.name})

	case protocol.Unknownsetd:
		s.logger.Debug("ignoring unknown setd id", "id", m.ID)

	case protocol.Unrecognised:
		s.logger.Debug("ignoring unrecognised server message", "tag", m.Tag)

	case protocol.Error:
		// Decode surfaces malformed known tags as a Go error rather than
		// this variant (see internal/protocol), but the session still
		// honors it as fatal if it's ever produced directly, matching the
		// ServerMessage variant named in spec.md §3.1.
		s.logger.Error("server sent an error frame, terminating session", "tag", m.Tag)
		return true
	}
	return false
}

func (s *Session) handleStream(m protocol.Stream) {
	s.stat.SetBufferSize(m.Threshold)
	s.stat.ResetForStream()
	s.autostart = m.AutostartBool()
	s.emitStat(statdata.EventConnect)

	s.player.Send(player.Stream{
		Autostart:       s.autostart,
		Threshold:       s.stat.BufferSize() * 1024,
		OutputThreshold: m.OutputThreshold,
		ReplayGain:      m.ReplayGain,
		ServerPort:      m.ServerPort,
		ServerIP:        m.ServerIP,
		ControlIP:       s.cfg.ServerIP,
		HTTPHeaders:     m.HTTPHeaders,
	})
}

func (s *Session) handlePause(millis uint32) {
	if millis == 0 {
		s.player.Send(player.PauseControl{Engaged: false})
		return
	}
	s.player.Send(player.PauseControl{Engaged: true})
	s.scheduleAfter(time.Duration(millis)*time.Millisecond, func(s *Session) {
		s.player.Send(player.UnpauseControl{Engaged: true})
	})
}

// handleUnpause treats Millis as an absolute jiffy deadline, not a
// duration (spec.md §4.3.2): 0 means "now", otherwise the delay is
// Millis minus the current jiffies().
func (s *Session) handleUnpause(millis uint32) {
	if millis == 0 {
		s.player.Send(player.UnpauseControl{Engaged: false})
		return
	}
	delay := int64(millis) - int64(s.stat.Jiffies(time.Now()))
	if delay <= 0 {
		s.player.Send(player.UnpauseControl{Engaged: true})
		return
	}
	s.scheduleAfter(time.Duration(delay)*time.Millisecond, func(s *Session) {
		s.player.Send(player.UnpauseControl{Engaged: true})
	})
}

// handlePlayerEvent implements spec.md §4.3.3.
func (s *Session) handlePlayerEvent(ev player.Event) {
	switch e := ev.(type) {
	case player.FlushedEvent:
		s.emitStat(statdata.EventFlushed)

	case player.PausedEvent:
		s.emitStat(statdata.EventPaused)

	case player.UnpausedEvent:
		s.emitStat(statdata.EventResumed)

	case player.EosEvent:
		s.emitStat(statdata.EventEndOfStream)

	case player.EstablishedEvent:
		s.emitStat(statdata.EventEstablished)

	case player.HeadersEvent:
		s.stat.SetHeaderCRLFCount(e.CRLFCount)
		s.emitStat(statdata.EventHeaders)

	case player.ErrorEvent:
		s.logger.Warn("player reported an error", "err", e.Err)
		s.emitStat(statdata.EventDecodeError)

	case player.StartEvent:
		s.emitStat(statdata.EventPlaybackStarted)
		s.scheduleAfter(400*time.Millisecond, func(s *Session) {
			s.emitStat(statdata.EventHeartbeat)
		})

	case player.StreamDataEvent:
		s.stat.SetPosition(e.PositionMillis, e.Fullness, e.OutputBufferFullness)

	case player.BufSizeEvent:
		s.stat.AddBytesReceived(e.Bytes)

	case player.OverrunEvent:
		if !s.autostart {
			s.player.Send(player.PauseControl{Engaged: true})
			s.emitStat(statdata.EventBufferThreshold)
			s.autostart = true
		}
	}
}

type decodedMessage struct {
	msg protocol.ServerMessage
	err error
}

// readLoop decodes frames off the connection in wire order and pushes them
// to decoded, closing it when the connection ends.
func (s *Session) readLoop(decoded chan<- decodedMessage) {
	defer close(decoded)

	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := s.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				msg, consumed, decodeErr := protocol.Decode(buf)
				if decodeErr != nil {
					decoded <- decodedMessage{err: decodeErr}
					return
				}
				if consumed == 0 {
					break
				}
				buf = buf[consumed:]
				decoded <- decodedMessage{msg: msg}
			}
		}
		if err != nil {
			return
		}
	}
}

// writeLoop drains the outbound queue to the socket; this is the only
// goroutine that writes to conn, so handlers never block on network I/O.
func (s *Session) writeLoop() {
	for {
		frame, ok := s.out.pop()
		if !ok {
			return
		}
		if _, err := s.conn.Write(frame); err != nil {
			s.logger.Debug("write failed, connection likely closing", "err", err)
			return
		}
	}
}

// String helps log lines identify a session by its server.
func (s *Session) String() string {
	return fmt.Sprintf("session(server=%s)", s.cfg.ServerIP)
}
