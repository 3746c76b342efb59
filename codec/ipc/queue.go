package ipc

import (
	"errors"

	"github.com/talostrading/ev"
)

// Queue stores frames in an ev.RingBuffer, oldest first.
type Queue struct {
	rb    *ev.RingBuffer
	flags ev.RingFlag
}

// NewQueue wraps rb. With overwrite set, pushing into a full queue drops
// the oldest frames nobody is reading.
func NewQueue(rb *ev.RingBuffer, overwrite bool) *Queue {
	q := &Queue{rb: rb}
	if overwrite {
		q.flags = ev.RingOverwrite
	}
	return q
}

// Push encodes a frame straight into the ring buffer.
func (q *Queue) Push(flags uint8, extra, data []byte) error {
	if err := checkSizes(extra, data); err != nil {
		return err
	}

	tok, err := q.rb.Reserve(FrameSize(len(extra), len(data)), q.flags)
	if err != nil {
		return err
	}
	if _, err := Put(tok.Data(), flags, extra, data); err != nil {
		_ = q.rb.Commit(tok, ev.RingDiscard)
		return err
	}
	return q.rb.Commit(tok, 0)
}

// PushRaw stores an already encoded frame, validating its header first.
func (q *Queue) PushRaw(b []byte) error {
	_, n, err := Decode(b)
	if err != nil {
		return err
	}

	tok, err := q.rb.Reserve(n, q.flags)
	if err != nil {
		return err
	}
	copy(tok.Data(), b[:n])
	return q.rb.Commit(tok, 0)
}

// Pop returns the oldest frame. The frame aliases the ring buffer until the
// token is handed back with Release or Requeue. Corrupted entries are
// dropped and reported with ErrBadMagic.
func (q *Queue) Pop() (Frame, ev.Token, error) {
	tok, ok := q.rb.Consume()
	if !ok {
		return Frame{}, ev.Token{}, ErrNeedMore
	}

	f, _, err := Decode(tok.Data())
	if err != nil {
		if errors.Is(err, ErrNeedMore) {
			err = ErrBadMagic
		}
		_ = q.rb.Commit(tok, ev.RingDiscard|ev.RingAbandon)
		return Frame{}, ev.Token{}, err
	}
	return f, tok, nil
}

// Release deletes a popped frame.
func (q *Queue) Release(tok ev.Token) error {
	return q.rb.Commit(tok, ev.RingDiscard)
}

// Requeue puts a popped frame back at its place in the queue.
func (q *Queue) Requeue(tok ev.Token) error {
	return q.rb.Commit(tok, 0)
}

// Len returns the number of frames stored, being read or not.
func (q *Queue) Len() int {
	c := q.rb.Count()
	return c.Committed + c.Reading
}
