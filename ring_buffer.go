package ev

import (
	"encoding/binary"
	"math"
)

// RingFlag alters Reserve and Commit.
type RingFlag uint8

const (
	// RingOverwrite lets Reserve evict the oldest committed tokens when the
	// buffer is full.
	RingOverwrite RingFlag = 1 << iota

	// RingDiscard makes Commit delete the token instead of committing or
	// re-queueing it.
	RingDiscard

	// RingAbandon lets Commit release a token being read while a newer token
	// is also being read.
	RingAbandon
)

type TokenState uint8

const (
	TokenFree TokenState = iota
	TokenWriting
	TokenCommitted
	TokenReading
)

func (s TokenState) String() string {
	switch s {
	case TokenWriting:
		return "writing"
	case TokenCommitted:
		return "committed"
	case TokenReading:
		return "reading"
	default:
		return "free"
	}
}

const (
	// The first ringSentinel bytes of the arena are never allocated, so that
	// offset 0 means "no node".
	ringSentinel = 8
	ringAlign    = 8

	// Node header layout, followed by the payload.
	ringPhyPrev    = 0
	ringPhyNext    = 4
	ringOlder      = 8
	ringNewer      = 12
	ringState      = 16
	ringSize       = 20
	ringSeq        = 24
	ringNodeHeader = 32

	ringMaxRegion = math.MaxUint32 &^ (ringAlign - 1)
)

// HeapCost returns the bytes of a region consumed by the buffer itself. A
// region holding n tokens of size s needs HeapCost() + n*NodeCost(s) bytes.
func HeapCost() int {
	return ringSentinel
}

// NodeCost returns the bytes consumed by a token with a payload of size
// bytes.
func NodeCost(size int) int {
	return ringNodeHeader + (size+ringAlign-1)&^(ringAlign-1)
}

// RingCounts is returned by RingBuffer.Count.
type RingCounts struct {
	Writing   int
	Committed int
	Reading   int
}

func (c RingCounts) Total() int {
	return c.Writing + c.Committed + c.Reading
}

// RingBuffer stores variable sized tokens in a fixed region, consumed in
// insertion order.
//
// Every token sits in two chains: the physical chain orders tokens by
// address and wraps around, the temporal chain orders them from oldest to
// newest. Links are offsets relative to the start of the region, so the
// region's contents stay valid when it is moved. The head and the counters
// live in the RingBuffer itself, so a region alone cannot be reattached by
// another RingBuffer.
//
// A producer Reserves a token, fills Data and Commits it. A consumer
// Consumes the oldest committed token and Commits it back, with RingDiscard
// once done with it.
//
// RingBuffer is not safe for concurrent use.
type RingBuffer struct {
	data []byte

	// head is the most recently placed node. New nodes go physically right
	// after it.
	head uint32

	oldest, newest uint32

	seq    uint64
	counts RingCounts
}

// NewRingBuffer allocates a region of capacity bytes.
func NewRingBuffer(capacity int) (*RingBuffer, error) {
	if capacity < ringSentinel+ringNodeHeader {
		return nil, ErrInvalid
	}
	return NewRingBufferOn(make([]byte, capacity))
}

// NewRingBufferOn builds a buffer over b. Regions over 4GiB are truncated.
func NewRingBufferOn(b []byte) (*RingBuffer, error) {
	if len(b) < ringSentinel+ringNodeHeader {
		return nil, ErrInvalid
	}
	if uint64(len(b)) > ringMaxRegion {
		b = b[:uint64(ringMaxRegion)]
	}
	return &RingBuffer{data: b}, nil
}

// Reset drops every token. Tokens handed out before are invalidated.
func (rb *RingBuffer) Reset() {
	for off := rb.oldest; off != 0; {
		next := rb.get(off, ringNewer)
		rb.set(off, ringState, uint32(TokenFree))
		off = next
	}
	rb.head = 0
	rb.oldest = 0
	rb.newest = 0
	rb.counts = RingCounts{}
}

func (rb *RingBuffer) Cap() int {
	return len(rb.data)
}

func (rb *RingBuffer) Count() RingCounts {
	return rb.counts
}

func (rb *RingBuffer) get(off, field uint32) uint32 {
	return binary.NativeEndian.Uint32(rb.data[off+field:])
}

func (rb *RingBuffer) set(off, field, v uint32) {
	binary.NativeEndian.PutUint32(rb.data[off+field:], v)
}

func (rb *RingBuffer) state(off uint32) TokenState {
	return TokenState(rb.get(off, ringState))
}

func (rb *RingBuffer) setState(off uint32, s TokenState) {
	rb.countState(rb.state(off), -1)
	rb.set(off, ringState, uint32(s))
	rb.countState(s, 1)
}

func (rb *RingBuffer) countState(s TokenState, delta int) {
	switch s {
	case TokenWriting:
		rb.counts.Writing += delta
	case TokenCommitted:
		rb.counts.Committed += delta
	case TokenReading:
		rb.counts.Reading += delta
	}
}

func (rb *RingBuffer) end(off uint32) uint32 {
	return off + uint32(NodeCost(int(rb.get(off, ringSize))))
}

// Reserve returns a token of size bytes in the Writing state. It fails with
// ErrNoSpace if there is no room, or, with RingOverwrite, if making room
// would evict a token which is not committed.
func (rb *RingBuffer) Reserve(size int, flags RingFlag) (Token, error) {
	if size < 0 {
		return Token{}, ErrInvalid
	}
	if size > len(rb.data)-ringSentinel-ringNodeHeader {
		return Token{}, ErrNoSpace
	}

	need := uint32(NodeCost(size))
	off, ok := rb.place(need)
	if !ok && flags&RingOverwrite != 0 {
		off, ok = rb.overwrite(need)
	}
	if !ok {
		return Token{}, ErrNoSpace
	}

	rb.insert(off, uint32(size))
	return Token{rb: rb, off: off}, nil
}

func (rb *RingBuffer) place(need uint32) (uint32, bool) {
	if rb.head == 0 {
		if need <= uint32(len(rb.data))-ringSentinel {
			return ringSentinel, true
		}
		return 0, false
	}
	return rb.fit(rb.head, rb.get(rb.head, ringPhyNext), need)
}

// fit places need bytes after h, given that s is the node physically
// following h once placed.
func (rb *RingBuffer) fit(h, s, need uint32) (uint32, bool) {
	end := rb.end(h)
	if s > h {
		if s-end >= need {
			return end, true
		}
		return 0, false
	}

	// h is the last node of the region and s the first one.
	if uint32(len(rb.data))-end >= need {
		return end, true
	}
	if s-ringSentinel >= need {
		return ringSentinel, true
	}
	return 0, false
}

// overwrite evicts the shortest run of oldest tokens which makes room for
// need bytes after the head. The run must only hold committed tokens laid
// out contiguously right after the head.
func (rb *RingBuffer) overwrite(need uint32) (uint32, bool) {
	h := rb.head
	if h == 0 {
		return 0, false
	}

	var (
		expect = rb.get(h, ringPhyNext)
		victim = rb.oldest
		n      = 0
	)
	for victim != 0 {
		if victim != expect || rb.state(victim) != TokenCommitted {
			return 0, false
		}
		n++

		if victim == h {
			// Everything goes.
			if need > uint32(len(rb.data))-ringSentinel {
				return 0, false
			}
			rb.evict(n)
			return ringSentinel, true
		}

		s := rb.get(victim, ringPhyNext)
		if off, ok := rb.fit(h, s, need); ok {
			rb.evict(n)
			return off, true
		}

		expect = s
		victim = rb.get(victim, ringNewer)
	}
	return 0, false
}

func (rb *RingBuffer) evict(n int) {
	for i := 0; i < n; i++ {
		rb.remove(rb.oldest)
	}
}

func (rb *RingBuffer) insert(off, size uint32) {
	rb.seq++

	rb.set(off, ringState, uint32(TokenWriting))
	rb.set(off, ringSize, size)
	binary.NativeEndian.PutUint64(rb.data[off+ringSeq:], rb.seq)
	rb.countState(TokenWriting, 1)

	if h := rb.head; h == 0 {
		rb.set(off, ringPhyPrev, off)
		rb.set(off, ringPhyNext, off)
	} else {
		next := rb.get(h, ringPhyNext)
		rb.set(off, ringPhyPrev, h)
		rb.set(off, ringPhyNext, next)
		rb.set(h, ringPhyNext, off)
		rb.set(next, ringPhyPrev, off)
	}
	rb.head = off

	rb.set(off, ringOlder, rb.newest)
	rb.set(off, ringNewer, 0)
	if rb.newest != 0 {
		rb.set(rb.newest, ringNewer, off)
	} else {
		rb.oldest = off
	}
	rb.newest = off
}

func (rb *RingBuffer) remove(off uint32) {
	prev, next := rb.get(off, ringPhyPrev), rb.get(off, ringPhyNext)
	if next == off {
		rb.head = 0
	} else {
		rb.set(prev, ringPhyNext, next)
		rb.set(next, ringPhyPrev, prev)
		if rb.head == off {
			rb.head = prev
		}
	}

	older, newer := rb.get(off, ringOlder), rb.get(off, ringNewer)
	if older != 0 {
		rb.set(older, ringNewer, newer)
	} else {
		rb.oldest = newer
	}
	if newer != 0 {
		rb.set(newer, ringOlder, older)
	} else {
		rb.newest = older
	}

	rb.countState(rb.state(off), -1)
	rb.set(off, ringState, uint32(TokenFree))
}

// Consume returns the oldest committed token not being read, in the Reading
// state. Tokens are handed out in insertion order: nothing is returned while
// the oldest token not being read is still being written.
func (rb *RingBuffer) Consume() (Token, bool) {
	for off := rb.oldest; off != 0; off = rb.get(off, ringNewer) {
		switch rb.state(off) {
		case TokenReading:
			continue
		case TokenCommitted:
			rb.setState(off, TokenReading)
			return Token{rb: rb, off: off}, true
		default:
			return Token{}, false
		}
	}
	return Token{}, false
}

// Commit finishes a write or a read.
//
// A Writing token becomes Committed, or is deleted with RingDiscard. A
// Reading token is re-queued as Committed, or deleted with RingDiscard.
//
// Both deleting and re-queueing a Reading token fail with ErrOutOfOrder while
// a newer token is being read, unless RingAbandon is set. Re-queueing is
// guarded too: the token would otherwise be handed out again ahead of the
// newer one.
func (rb *RingBuffer) Commit(t Token, flags RingFlag) error {
	if !rb.owns(t) {
		return ErrInvalid
	}

	switch rb.state(t.off) {
	case TokenWriting:
		if flags&RingDiscard != 0 {
			rb.remove(t.off)
		} else {
			rb.setState(t.off, TokenCommitted)
		}
		return nil
	case TokenReading:
		if flags&RingAbandon == 0 && rb.newerReading(t.off) {
			return ErrOutOfOrder
		}
		if flags&RingDiscard != 0 {
			rb.remove(t.off)
		} else {
			rb.setState(t.off, TokenCommitted)
		}
		return nil
	default:
		return ErrInvalid
	}
}

func (rb *RingBuffer) newerReading(off uint32) bool {
	for off = rb.get(off, ringNewer); off != 0; off = rb.get(off, ringNewer) {
		if rb.state(off) == TokenReading {
			return true
		}
	}
	return false
}

func (rb *RingBuffer) owns(t Token) bool {
	return t.rb == rb &&
		t.off >= ringSentinel &&
		uint64(t.off)+ringNodeHeader <= uint64(len(rb.data)) &&
		rb.state(t.off) != TokenFree
}

// Begin returns the oldest token, whatever its state.
func (rb *RingBuffer) Begin() (Token, bool) {
	if rb.oldest == 0 {
		return Token{}, false
	}
	return Token{rb: rb, off: rb.oldest}, true
}

// Next returns the token inserted after t.
func (rb *RingBuffer) Next(t Token) (Token, bool) {
	if !rb.owns(t) {
		return Token{}, false
	}
	next := rb.get(t.off, ringNewer)
	if next == 0 {
		return Token{}, false
	}
	return Token{rb: rb, off: next}, true
}

// Token refers to a node of a RingBuffer. It stays valid until the node is
// deleted, evicted or the buffer is Reset.
type Token struct {
	rb  *RingBuffer
	off uint32
}

func (t Token) Valid() bool {
	return t.rb != nil && t.rb.owns(t)
}

// Data returns the token's payload, backed by the buffer's region.
func (t Token) Data() []byte {
	if !t.Valid() {
		return nil
	}
	from := t.off + ringNodeHeader
	to := from + t.rb.get(t.off, ringSize)
	return t.rb.data[from:to:to]
}

func (t Token) Size() int {
	if !t.Valid() {
		return 0
	}
	return int(t.rb.get(t.off, ringSize))
}

func (t Token) State() TokenState {
	if t.rb == nil || !t.rb.owns(t) {
		return TokenFree
	}
	return t.rb.state(t.off)
}

// Seq returns the insertion sequence number of the token, starting at 1.
func (t Token) Seq() uint64 {
	if !t.Valid() {
		return 0
	}
	return binary.NativeEndian.Uint64(t.rb.data[t.off+ringSeq:])
}
