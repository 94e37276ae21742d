package core

import (
	"errors"
	"fmt"
)

// ErrInvalidIdentity is returned when a channel or sender is empty.
var ErrInvalidIdentity = errors.New("core: channel and sender must be non-empty")

// Identity names one sender on one channel. Distinct senders, or the
// same sender on distinct channels, derive distinct keys; the derived
// keys are the primary isolation mechanism between conversations.
//
// Callers construct an Identity and hand it to the bridge; they never
// build cache or storage keys themselves.
type Identity struct {
	Channel string
	Sender  string
}

// Validate rejects identities with an empty channel or sender.
// An empty component would let two different senders collide on the
// same derived key.
func (id Identity) Validate() error {
	if id.Channel == "" || id.Sender == "" {
		return fmt.Errorf("%w: channel=%q sender=%q", ErrInvalidIdentity, id.Channel, id.Sender)
	}
	return nil
}

// CacheKey derives the in-process cache key: "{channel}_{sender}".
func (id Identity) CacheKey() string {
	return id.Channel + "_" + id.Sender
}

// StorageKey derives the durable conversation key:
// "{channel}_conv:{sender}". The format is part of the on-disk
// contract; existing histories are addressed by it.
func (id Identity) StorageKey() string {
	return id.Channel + "_conv:" + id.Sender
}

// String implements fmt.Stringer for log output.
func (id Identity) String() string {
	return id.Channel + "/" + id.Sender
}
