package quicrecovery

import (
	"sync"
	"sync/atomic"
)

// Payload is the opaque packet-payload handle referenced by a sent-packet
// record. The core never inspects payload contents, only its size — the
// same contract the teacher's transport layers use for pooled buffers.
type Payload interface {
	// SizeInBytes returns the wire size of the payload this handle
	// refers to.
	SizeInBytes() uint64
}

// BytesPayload is the simplest Payload implementation: a raw byte slice.
// Most callers that already own an encoded packet buffer can wrap it with
// BytesPayload directly instead of pooling.
type BytesPayload []byte

// SizeInBytes implements Payload.
func (p BytesPayload) SizeInBytes() uint64 { return uint64(len(p)) }

// PayloadPool recycles BytesPayload-backed handles of a single size class,
// following the size-classed sync.Pool-plus-atomic-metrics shape of the
// teacher's BufferPool. Retransmission-heavy workloads that re-arm the
// same payload repeatedly (probes, retransmitted frames) can avoid
// reallocating the backing buffer on every attempt.
type PayloadPool struct {
	size int
	pool sync.Pool

	gets   atomic.Uint64
	puts   atomic.Uint64
	misses atomic.Uint64
}

// NewPayloadPool creates a pool of payload buffers of the given size.
func NewPayloadPool(size int) *PayloadPool {
	pp := &PayloadPool{size: size}
	pp.pool.New = func() any {
		pp.misses.Add(1)
		return make([]byte, pp.size)
	}
	return pp
}

// Get returns a buffer of the pool's size class, reused when available.
func (pp *PayloadPool) Get() BytesPayload {
	pp.gets.Add(1)
	return BytesPayload(pp.pool.Get().([]byte))
}

// Put returns a buffer to the pool. Buffers of the wrong size are
// discarded rather than retained, matching the teacher's size-class
// discard behavior.
func (pp *PayloadPool) Put(p BytesPayload) {
	pp.puts.Add(1)
	if len(p) != pp.size {
		return
	}
	pp.pool.Put([]byte(p))
}

// Stats reports the pool's get/put/miss counters; hits are gets - misses.
func (pp *PayloadPool) Stats() (gets, puts, misses uint64) {
	return pp.gets.Load(), pp.puts.Load(), pp.misses.Load()
}
