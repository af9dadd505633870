package segdict

import (
	"time"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is the target CPU's cache-line size in bytes, computed the
// same way llxisdsh/pb computes it. No structure in this package is padded
// with it.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})

// enableSpin mirrors llxisdsh/pb's enableSpin switch: bounded spinning
// trades a little CPU for much lower retry latency under the "low write
// rate, especially removals" assumption the spec calls out in §4.1.
const enableSpin = true

// delay backs off a retrying reader. It spins using the Go scheduler's own
// PAUSE-instruction spin (linked from sync, exactly as llxisdsh/pb's delay
// helper does) while the runtime judges spinning worthwhile, and falls back
// to a short sleep once it doesn't.
//
//go:nosplit
func delay(spins *int) {
	const yieldSleep = 200 * time.Microsecond
	if enableSpin && runtime_canSpin(*spins) {
		runtime_doSpin()
		*spins++
		return
	}
	time.Sleep(yieldSleep)
	*spins = 0
}

//go:linkname runtime_canSpin sync.runtime_canSpin
//go:nosplit
func runtime_canSpin(i int) bool

//go:linkname runtime_doSpin sync.runtime_doSpin
//go:nosplit
func runtime_doSpin()

// noescape hides a pointer from escape analysis. Identity function that
// the compiler can't see through; used only for the read-only runtime
// type-metadata lookup in hash.go. Lifted verbatim from llxisdsh/pb.
//
//go:nosplit
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
