package netcore

import "context"

// ChanTransport is an in-memory Transport backed by Go channels, used by
// the tests (cmd/device uses internal/radiotransport instead) — there is
// no real MAC/PHY in this module's scope (§1).
type ChanTransport struct {
	Out chan []byte
	In  chan []byte
}

// NewChanTransportPair builds two transports wired to each other, as if
// a gateway and a device shared one radio link.
func NewChanTransportPair() (gateway, device *ChanTransport) {
	aToB := make(chan []byte, 16)
	bToA := make(chan []byte, 16)
	gateway = &ChanTransport{Out: aToB, In: bToA}
	device = &ChanTransport{Out: bToA, In: aToB}
	return gateway, device
}

func (t *ChanTransport) Send(ctx context.Context, frame []byte) error {
	select {
	case t.Out <- append([]byte(nil), frame...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ChanTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-t.In:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
