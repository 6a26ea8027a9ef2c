package ssosdk

import (
	"context"
	"sync"
	"time"
)

// MessageType is the discriminant of a relayed callback.
type MessageType string

const (
	// MessageCallback carries an interactive (popup) result.
	MessageCallback MessageType = "SSO_CALLBACK"
	// MessageSilentCallback carries a hidden-frame result. Only a silent
	// refresh waits for it.
	MessageSilentCallback MessageType = "SSO_SILENT_CALLBACK"
)

// CallbackMessage is what a relaying callback sends to the context that
// opened it.
type CallbackMessage struct {
	Type             MessageType `json:"type"`
	Origin           string      `json:"-"`
	Code             string      `json:"code,omitempty"`
	State            string      `json:"state,omitempty"`
	Error            string      `json:"error,omitempty"`
	ErrorDescription string      `json:"error_description,omitempty"`
	ErrorURI         string      `json:"error_uri,omitempty"`
}

// Err returns the provider error carried by m, or nil.
func (m CallbackMessage) Err() error {
	if m.Error == "" {
		return nil
	}
	return &ProviderError{Code: m.Error, Description: m.ErrorDescription, URI: m.ErrorURI}
}

// Bus delivers callback messages between contexts of one origin.
type Bus struct {
	origin string

	mu   sync.Mutex
	subs map[MessageType]map[*Subscription]struct{}
}

// NewBus creates a Bus that only delivers messages from origin.
func NewBus(origin string) *Bus {
	return &Bus{origin: origin, subs: make(map[MessageType]map[*Subscription]struct{})}
}

// Subscribe registers a listener for messages of type t.
func (b *Bus) Subscribe(t MessageType) *Subscription {
	s := &Subscription{bus: b, typ: t, c: make(chan CallbackMessage, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[t] == nil {
		b.subs[t] = make(map[*Subscription]struct{})
	}
	b.subs[t][s] = struct{}{}
	return s
}

// Publish delivers msg to the current listeners of its type and reports how
// many took it. Messages from another origin, or to a listener that already
// holds one, are dropped. Publish never blocks.
func (b *Bus) Publish(msg CallbackMessage) int {
	if msg.Origin != b.origin {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for s := range b.subs[msg.Type] {
		select {
		case s.c <- msg:
			n++
		default:
		}
	}
	return n
}

// Listeners is the number of open subscriptions for t.
func (b *Bus) Listeners(t MessageType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[t])
}

// Subscription receives at most one pending message at a time.
type Subscription struct {
	bus  *Bus
	typ  MessageType
	c    chan CallbackMessage
	once sync.Once
}

func (s *Subscription) C() <-chan CallbackMessage { return s.c }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.typ], s)
	})
}

// awaitCallback resolves exactly once with the first of: a message on sub,
// the timeout (returned as timeoutErr) or ctx ending. The subscription and
// timer are torn down on every path.
func awaitCallback(ctx context.Context, sub *Subscription, timeout time.Duration, timeoutErr error) (CallbackMessage, error) {
	defer sub.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-sub.C():
		return msg, nil
	case <-timer.C:
		return CallbackMessage{}, timeoutErr
	case <-ctx.Done():
		return CallbackMessage{}, ctx.Err()
	}
}
