package kfmt

import (
	"io"

	"github.com/WebFirstLanguage/wflos/kernel/queue"
)

// earlyBufferSize is large enough to hold a full 80x25 text screen worth of
// boot messages.
const earlyBufferSize = 2048

// earlyBuffer captures Printf output before an output sink is registered.
// Once the buffer fills up, further writes are discarded so that the first
// (and usually most relevant) boot messages survive.
type earlyBuffer struct {
	storage [earlyBufferSize]byte
	ring    queue.Ring[byte]
	ready   bool

	// dropped counts the bytes that did not fit.
	dropped int
}

// Write implements io.Writer. It never fails; bytes that do not fit are
// counted and discarded.
func (b *earlyBuffer) Write(p []byte) (int, error) {
	if !b.ready {
		b.ring.Init(b.storage[:])
		b.ready = true
	}

	for i, ch := range p {
		if b.ring.Push(ch) != nil {
			b.dropped += len(p) - i
			break
		}
	}

	return len(p), nil
}

// Read implements io.Reader and drains the buffered bytes in FIFO order.
func (b *earlyBuffer) Read(p []byte) (int, error) {
	if b.ring.IsEmpty() {
		return 0, io.EOF
	}

	var n int
	for n < len(p) {
		ch, ok := b.ring.Pop()
		if !ok {
			break
		}
		p[n] = ch
		n++
	}

	return n, nil
}
