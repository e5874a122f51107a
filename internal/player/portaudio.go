package player

import (
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioPlayer is the reference Player implementation. It opens a
// PortAudio output stream with the frames-per-buffer size given at
// construction (the Stream control's thresholds are not used) and writes
// silence: it exercises the full Control/Event contract (and the
// real PortAudio device) without performing any actual stream decode, which
// remains out of scope per spec.md §1.
type PortAudioPlayer struct {
	sampleRate float64
	frames     int

	mu      sync.Mutex
	stream  *portaudio.Stream
	paused  bool
	buf     []int16
	events  chan Event
	stopped chan struct{}
}

// NewPortAudioPlayer initializes PortAudio and returns a Player backed by
// the default output device. Callers must call Close when done.
func NewPortAudioPlayer(sampleRate float64, framesPerBuffer int) (*PortAudioPlayer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &PortAudioPlayer{
		sampleRate: sampleRate,
		frames:     framesPerBuffer,
		buf:        make([]int16, framesPerBuffer*2),
		events:     make(chan Event, 16),
	}, nil
}

func (p *PortAudioPlayer) Events() <-chan Event { return p.events }

func (p *PortAudioPlayer) Send(c Control) {
	switch ctl := c.(type) {
	case Stream:
		p.startStream()
	case StopControl:
		p.stopStream()
	case PauseControl:
		p.setPaused(true)
	case UnpauseControl:
		p.setPaused(false)
	case GainControl, EnableControl, SkipControl:
		// Gain/enable/skip have no effect on a silence-only reference player.
	}
}

func (p *PortAudioPlayer) startStream() {
	p.mu.Lock()
	if p.stream != nil {
		p.mu.Unlock()
		return
	}
	stream, err := portaudio.OpenDefaultStream(0, 2, p.sampleRate, p.frames, &p.buf)
	if err != nil {
		p.mu.Unlock()
		p.emit(ErrorEvent{Err: err})
		return
	}
	if err := stream.Start(); err != nil {
		p.mu.Unlock()
		p.emit(ErrorEvent{Err: err})
		return
	}
	p.stream = stream
	p.stopped = make(chan struct{})
	stopped := p.stopped
	p.mu.Unlock()

	p.emit(EstablishedEvent{})
	p.emit(HeadersEvent{CRLFCount: 2})
	p.emit(StartEvent{})

	go p.writeLoop(stream, stopped)
}

func (p *PortAudioPlayer) writeLoop(stream *portaudio.Stream, stopped chan struct{}) {
	var position uint32
	ticker := time.NewTicker(time.Duration(float64(p.frames) / p.sampleRate * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-stopped:
			return
		case <-ticker.C:
			p.mu.Lock()
			paused := p.paused
			p.mu.Unlock()
			if paused {
				continue
			}
			if err := stream.Write(); err != nil {
				p.emit(ErrorEvent{Err: err})
				return
			}
			position += uint32(float64(p.frames) / p.sampleRate * 1000)
			p.emit(StreamDataEvent{PositionMillis: position, Fullness: 0, OutputBufferFullness: uint32(len(p.buf))})
			p.emit(BufSizeEvent{Bytes: uint64(len(p.buf) * 2)})
		}
	}
}

func (p *PortAudioPlayer) setPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
	if paused {
		p.emit(PausedEvent{})
	} else {
		p.emit(UnpausedEvent{})
	}
}

func (p *PortAudioPlayer) stopStream() {
	p.mu.Lock()
	stream := p.stream
	stopped := p.stopped
	p.stream = nil
	p.stopped = nil
	p.mu.Unlock()

	if stream == nil {
		return
	}
	close(stopped)
	stream.Stop()  //nolint:errcheck
	stream.Close() //nolint:errcheck
	p.emit(FlushedEvent{})
	p.emit(EosEvent{})
}

func (p *PortAudioPlayer) emit(e Event) {
	select {
	case p.events <- e:
	default:
		// Drop rather than block the audio callback path; the session's
		// next status poll will re-derive state from fresh events.
	}
}

func (p *PortAudioPlayer) Close() error {
	p.stopStream()
	close(p.events)
	return portaudio.Terminate()
}
