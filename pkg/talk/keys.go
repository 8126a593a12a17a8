package talk

import (
	"context"
	"io"
)

// Key is a decoded keyboard action.
type Key int

const (
	// KeyToggle flips the push-to-talk state (spacebar).
	KeyToggle Key = iota
	// KeyQuit requests shutdown (q, Ctrl-C, or Ctrl-D in raw mode).
	KeyQuit
)

func decodeKey(b byte) (Key, bool) {
	switch b {
	case ' ':
		return KeyToggle, true
	case 'q', 'Q', 0x03, 0x04:
		return KeyQuit, true
	default:
		return 0, false
	}
}

// ReadKeys starts a reader goroutine decoding single bytes from r
// (typically stdin in raw mode) into key events. The channel closes when
// r fails or ctx is canceled; unrecognized keys are skipped.
func ReadKeys(ctx context.Context, r io.Reader) <-chan Key {
	keys := make(chan Key, 4)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				if key, ok := decodeKey(buf[0]); ok {
					select {
					case keys <- key:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil || ctx.Err() != nil {
				return
			}
		}
	}()
	return keys
}
