package segdict

import (
	"math/rand"
	"unsafe"
)

// Hasher is the injected, stateless hash/equality capability a Dict or
// Segment is built on. Key equality itself is Go's built-in comparable
// (==); Hasher only supplies the distribution. Implementations should be
// zero-sized where possible so the compiler can specialize call sites
// instead of going through an interface indirection on the hot path.
type Hasher[K comparable] interface {
	// Hash returns a hash code for key. The caller masks off the sign bit
	// before using it, so Hash may return any 32-bit pattern.
	Hash(key K) int32
}

// nonNegativeHash masks a raw hash down to the 31-bit non-negative space
// the rest of this package routes on (spec: hash & 0x7FFFFFFF).
//
//go:nosplit
func nonNegativeHash(h int32) uint32 {
	return uint32(h) & 0x7fffffff
}

// BuiltinHasher is the default Hasher: it borrows Go's own built-in map
// hash function for K, seeded per construction, the same escape hatch
// llxisdsh/pb uses in defaultHasherUsingBuiltIn so that no reflection or
// per-call allocation sits on the lookup path.
type BuiltinHasher[K comparable] struct {
	seed uintptr
	hash func(key *K, seed uintptr) uintptr
}

// NewBuiltinHasher constructs the default hasher for K with a fresh random
// seed. Constructing it once and reusing it across Dict/Segment instances
// avoids paying the runtime type-metadata lookup more than once per type.
func NewBuiltinHasher[K comparable]() BuiltinHasher[K] {
	return BuiltinHasher[K]{
		seed: uintptr(rand.Uint64()),
		hash: builtinKeyHasher[K](),
	}
}

// Hash implements Hasher.
//
//go:nosplit
func (h BuiltinHasher[K]) Hash(key K) int32 {
	return int32(h.hash(&key, h.seed))
}

// builtinKeyHasher resolves K's hash function straight from the runtime's
// map-type metadata, the way the Go compiler would generate it for a
// map[K]struct{}. This is the same technique llxisdsh/pb uses (see its
// defaultHasherUsingBuiltIn): it sidesteps both a reflect.Value round trip
// and the need to hand-write a hash function per key kind.
func builtinKeyHasher[K comparable]() func(key *K, seed uintptr) uintptr {
	var m map[K]struct{}
	mapType := iTypeOf(m).MapType()
	hasher := mapType.Hasher
	return func(key *K, seed uintptr) uintptr {
		return hasher(unsafe.Pointer(key), seed)
	}
}

// --- runtime type-metadata shim, mirroring llxisdsh/pb's iType family ---
// This layout tracks the exported subset of runtime._type / internal/abi.Type
// that has been stable across recent Go releases; it is read-only and never
// mutated, so it carries no more risk than any other use of //go:linkname.

type iTFlag uint8
type iKind uint8
type iNameOff int32
type iTypeOff int32

type iType struct {
	Size_       uintptr
	PtrBytes    uintptr
	Hash        uint32
	TFlag       iTFlag
	Align_      uint8
	FieldAlign_ uint8
	Kind_       iKind
	Equal       func(unsafe.Pointer, unsafe.Pointer) bool
	GCData      *byte
	Str         iNameOff
	PtrToThis   iTypeOff
}

func (t *iType) MapType() *iMapType {
	return (*iMapType)(unsafe.Pointer(t))
}

type iMapType struct {
	iType
	Key    *iType
	Elem   *iType
	Group  *iType
	Hasher func(unsafe.Pointer, uintptr) uintptr
}

type iEmptyInterface struct {
	Type *iType
	Data unsafe.Pointer
}

func iTypeOf(a any) *iType {
	eface := *(*iEmptyInterface)(unsafe.Pointer(&a))
	return (*iType)(noescape(unsafe.Pointer(eface.Type)))
}
