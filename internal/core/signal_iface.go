package core

// Frame is a raw payload pushed to a UI client.
type Frame []byte

// SignalConnection abstracts the UI push transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
