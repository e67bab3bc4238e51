// Package secure keeps credential values in protected memory between the
// moment they enter the process (flag, environment, stdin) and the store
// write. Values are held in a memguard enclave: encrypted at rest in
// memory and mlocked against swapping where the platform allows it.
package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a buffer is opened after Destroy.
var ErrDestroyed = errors.New("secure buffer destroyed")

// Buffer wraps a memguard enclave holding one sensitive value.
type Buffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	destroyed bool
}

// NewBuffer seals data into a protected enclave. The caller should zero
// its own copy afterwards.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{enclave: memguard.NewEnclave(data)}
}

// NewBufferFromString seals a string value.
func NewBufferFromString(value string) *Buffer {
	return NewBuffer([]byte(value))
}

// Open decrypts the value into a locked buffer. The caller must Destroy
// the returned buffer when done to wipe the plaintext.
func (b *Buffer) Open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return nil, ErrDestroyed
	}
	return b.enclave.Open()
}

// String decrypts the value, copies it out and wipes the plaintext
// buffer. The returned Go string is unprotected; keep its lifetime short.
func (b *Buffer) String() (string, error) {
	locked, err := b.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()
	return string(locked.Bytes()), nil
}

// Destroy marks the buffer unusable. Idempotent; after Destroy, Open
// returns ErrDestroyed. Call memguard.Purge in main for full cleanup
// at exit.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
}
