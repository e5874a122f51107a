package player

// NullPlayer discards every control and never emits any event; its event
// channel is only closed by Close. It backs --no-audio mode so the protocol engine runs on a machine with no
// sound device, same as headless SlimProto clients commonly offer.
type NullPlayer struct {
	events chan Event
}

// NewNullPlayer returns a Player that does nothing.
func NewNullPlayer() *NullPlayer {
	return &NullPlayer{events: make(chan Event)}
}

func (p *NullPlayer) Send(Control) {}

func (p *NullPlayer) Events() <-chan Event { return p.events }

func (p *NullPlayer) Close() error {
	close(p.events)
	return nil
}
