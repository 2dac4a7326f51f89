//go:build linux

package perf

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// event is one perf fd plus its mmap'd sample ring.
type event struct {
	fd   int
	mem  []byte
	meta *unix.PerfEventMmapPage
	data []byte
}

// perf_event_header as laid out by the kernel.
type recordHeader struct {
	Type uint32
	Misc uint16
	Size uint16
}

const headerSize = int(unsafe.Sizeof(recordHeader{}))

// drain consumes every complete record currently in the ring and calls
// fn for each PERF_RECORD_SAMPLE's instruction pointer. Non-sample
// records (throttle, lost) are skipped. Runs on the owning thread with
// no allocation.
func (e *event) drain(instruction bool, fn func(instruction bool, ip uint64)) int {
	head := atomic.LoadUint64(&e.meta.Data_head)
	tail := e.meta.Data_tail
	if head == tail {
		return 0
	}

	size := uint64(len(e.data))
	delivered := 0
	for tail < head {
		var hdr recordHeader
		e.copyOut(unsafe.Slice((*byte)(unsafe.Pointer(&hdr)), headerSize), tail, size)
		if hdr.Size == 0 {
			break
		}

		if hdr.Type == unix.PERF_RECORD_SAMPLE && int(hdr.Size) >= headerSize+8 {
			var ip uint64
			e.copyOut(unsafe.Slice((*byte)(unsafe.Pointer(&ip)), 8), tail+uint64(headerSize), size)
			fn(instruction, ip)
			delivered++
		}
		tail += uint64(hdr.Size)
	}

	atomic.StoreUint64(&e.meta.Data_tail, head)
	return delivered
}

// copyOut copies len(dst) ring bytes starting at absolute position pos,
// handling wrap-around at the ring boundary.
func (e *event) copyOut(dst []byte, pos, size uint64) {
	off := pos % size
	n := copy(dst, e.data[off:])
	if n < len(dst) {
		copy(dst[n:], e.data[:len(dst)-n])
	}
}

func (e *event) close() {
	if e.mem != nil {
		_ = unix.Munmap(e.mem)
		e.mem = nil
	}
	if e.fd >= 0 {
		_ = unix.Close(e.fd)
		e.fd = -1
	}
}
