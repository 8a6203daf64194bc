package transport

import (
	"context"
	"sync"
)

// Pipe is an in-memory Endpoint. Whatever is sent to it goes through the
// same encoding as a websocket message and can be read back with Recv or
// Messages. It stands in for a frame or host connection in embedders and
// tests.
type Pipe struct {
	id    string
	codec Codec

	mu     sync.Mutex
	ch     chan Envelope
	done   chan struct{}
	closed bool
}

var _ Endpoint = &Pipe{}

// NewPipe returns a pipe that buffers up to buffer messages.
func NewPipe(id string, codec Codec, buffer int) *Pipe {
	return &Pipe{
		id:    id,
		codec: codec,
		ch:    make(chan Envelope, buffer),
		done:  make(chan struct{}),
	}
}

// ID implements Endpoint.
func (p *Pipe) ID() string { return p.id }

// Done implements Endpoint.
func (p *Pipe) Done() <-chan struct{} { return p.done }

// Send implements Endpoint.
func (p *Pipe) Send(cmd string, payload interface{}) error {
	buf, err := p.codec.Encode(cmd, payload)
	if err != nil {
		return err
	}
	env, _, err := p.codec.Decode(buf)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.ch <- env:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close implements Endpoint. Buffered messages can still be read.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}

// Messages returns the channel of messages sent to the pipe.
func (p *Pipe) Messages() <-chan Envelope {
	return p.ch
}

// Recv returns the next message sent to the pipe.
func (p *Pipe) Recv(ctx context.Context) (Envelope, error) {
	select {
	case env := <-p.ch:
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Drain returns every buffered message without waiting.
func (p *Pipe) Drain() []Envelope {
	var out []Envelope
	for {
		select {
		case env := <-p.ch:
			out = append(out, env)
		default:
			return out
		}
	}
}
