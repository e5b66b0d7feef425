package stream

import (
	"net"
	"sync"
	"time"
)

// Summary reports the byte counts transferred in each direction once a
// Duplex completes, matching spec.md §4.B and original_source's
// connection::duplex::Summary{to_dst_bytes, to_src_bytes}.
type Summary struct {
	BytesToDst uint64
	BytesToSrc uint64
}

// Run composes two half-duplex transfers (src->dst and dst->src) into one
// unit of work: both directions run concurrently on their own goroutines,
// each borrowing its own buffer from pool, and Run returns once both
// directions have completed (or one has failed, in which case the other
// socket is closed so the peer notices promptly rather than dangling until
// its own idle timeout).
func Run(src, dst net.Conn, pool *BufferPool, idleTimeout time.Duration) (Summary, error) {
	var wg sync.WaitGroup
	var toDst, toSrc HalfDuplexResult

	wg.Add(2)
	go func() {
		defer wg.Done()
		buf := pool.Get()
		defer pool.Put(buf)
		toDst = CopyHalfDuplex(src, dst, buf, idleTimeout)
		if toDst.Err != nil {
			// Abort the other half promptly: closing dst unblocks any
			// in-flight Read on the dst->src direction.
			_ = dst.Close()
		}
	}()
	go func() {
		defer wg.Done()
		buf := pool.Get()
		defer pool.Put(buf)
		toSrc = CopyHalfDuplex(dst, src, buf, idleTimeout)
		if toSrc.Err != nil {
			_ = src.Close()
		}
	}()
	wg.Wait()

	summary := Summary{BytesToDst: toDst.BytesTransferred, BytesToSrc: toSrc.BytesTransferred}

	if toDst.Err != nil {
		return summary, toDst.Err
	}
	if toSrc.Err != nil {
		return summary, toSrc.Err
	}
	return summary, nil
}
