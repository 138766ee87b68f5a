// Package scope interns dot-separated TextMate scope names ("source.rust.meta.function")
// into small fixed-width identifiers that support O(1) prefix comparison.
package scope

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxAtoms is the number of dot-separated components a Scope retains; any
// atoms past this are silently truncated, matching observed TextMate behavior
// for scopes that overflow.
const MaxAtoms = 8

// MaxRepositorySize is the largest number of distinct atoms the global
// registry will intern before returning ErrTooManyAtoms.
const MaxRepositorySize = 1<<16 - 2

// ErrTooManyAtoms is returned by Registry.Build when a registry's atom table
// would exceed MaxRepositorySize.
var ErrTooManyAtoms = fmt.Errorf("scope: too many distinct atoms (max %d)", MaxRepositorySize)

// Scope is a hierarchical, dot-separated identifier packed into two uint64s:
// eight 16-bit atom slots, most-significant slot first. Each slot holds the
// atom's registry index+1, so the packed order follows the order in which
// atoms were interned, not the alphabetical order of the dotted string;
// it does order a scope before every scope it is a proper prefix of. A zero atom marks
// an unused (or absent) slot; the zero Scope is the empty scope, a prefix of
// everything.
type Scope struct {
	hi, lo uint64
}

// atomSlot returns the raw (index+1) value stored at the given atom index,
// or 0 if the slot is unused.
func (s Scope) atomSlot(index int) uint16 {
	shift := uint((3 - index%4) * 16)
	if index < 4 {
		return uint16(s.hi >> shift)
	}
	return uint16(s.lo >> shift)
}

func setAtomSlot(hi, lo uint64, index int, value uint16) (uint64, uint64) {
	shift := uint((3 - index%4) * 16)
	if index < 4 {
		hi |= uint64(value) << shift
	} else {
		lo |= uint64(value) << shift
	}
	return hi, lo
}

// AtomAt returns the repository index+1 of the atom at position i (0-based),
// or 0 if i names an unused slot. Panics if i is out of [0, MaxAtoms).
func (s Scope) AtomAt(i int) uint16 {
	if i < 0 || i >= MaxAtoms {
		panic("scope: atom index out of range")
	}
	return s.atomSlot(i)
}

// Len reports the number of atoms present in the scope.
func (s Scope) Len() int {
	for i := 0; i < MaxAtoms; i++ {
		if s.atomSlot(i) == 0 {
			return i
		}
	}
	return MaxAtoms
}

// IsEmpty reports whether the scope has no atoms.
func (s Scope) IsEmpty() bool {
	return s.hi == 0 && s.lo == 0
}

// EncodeMsgpack writes the packed hi/lo pair directly, since hi and lo are
// unexported and msgpack's reflection-based struct encoding would otherwise
// silently encode a Scope as two zero fields wherever one is embedded in a
// larger msgpack-encoded value (e.g. a dumped injection selector tree).
func (s Scope) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeUint64(s.hi); err != nil {
		return err
	}
	return enc.EncodeUint64(s.lo)
}

// DecodeMsgpack is EncodeMsgpack's counterpart.
func (s *Scope) DecodeMsgpack(dec *msgpack.Decoder) error {
	hi, err := dec.DecodeUint64()
	if err != nil {
		return err
	}
	lo, err := dec.DecodeUint64()
	if err != nil {
		return err
	}
	s.hi, s.lo = hi, lo
	return nil
}

// IsPrefixOf reports whether s, read as a dotted-atom list, is a prefix of
// other's dotted-atom list. The empty scope is a prefix of every scope.
// Constant time, no allocation: it masks off the bits beyond s's own length
// and compares what remains.
func (s Scope) IsPrefixOf(other Scope) bool {
	n := s.Len()
	if n == 0 {
		return true
	}
	hiMask, loMask := ^uint64(0), ^uint64(0)
	if n <= 4 {
		hiMask <<= uint((4 - n) * 16)
		loMask = 0
	} else {
		loMask <<= uint((8 - n) * 16)
	}
	return (s.hi^other.hi)&hiMask == 0 && (s.lo^other.lo)&loMask == 0
}

// Equal reports whether two scopes have identical atom sequences.
func (s Scope) Equal(other Scope) bool {
	return s.hi == other.hi && s.lo == other.lo
}

// Less provides a total order over scopes by comparing the packed atom
// indices slot by slot, first slot most significant. Atoms compare by
// interning order, not alphabetically, so this is not the order of the
// dotted string form; a scope does sort before any scope it prefixes.
func (s Scope) Less(other Scope) bool {
	if s.hi != other.hi {
		return s.hi < other.hi
	}
	return s.lo < other.lo
}

// String re-stringifies the scope via the global registry. Intended for
// debugging; not on any hot path.
func (s Scope) String() string {
	return globalRepo.buildString(s)
}

// Registry is an append-only, thread-safe table mapping atom strings to
// small integer indices, used to build and re-stringify Scope values. The
// zero Registry is ready to use. A Registry is safe to serialize (Dump) and
// rehydrate (Restore) so a process can ship a precomputed interning table
// alongside compiled grammars.
type Registry struct {
	mu      sync.Mutex
	atoms   []string
	indices map[string]uint16
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{indices: make(map[string]uint16)}
}

var globalRepo = NewRegistry()

// Global returns the process-wide scope registry used by New and String.
func Global() *Registry { return globalRepo }

// SetGlobal replaces the process-wide scope registry, e.g. after restoring a
// serialized Dump. The replacement is a plain, unsynchronized assignment:
// it is not atomic and takes no lock, so it must not run concurrently with
// New, String or Global, and Scopes built from the old registry are not
// translated to the new one.
func SetGlobal(r *Registry) {
	globalRepo = r
}

func (r *Registry) atomIndex(atom string) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.indices[atom]; ok {
		return idx, nil
	}
	if r.indices == nil {
		r.indices = make(map[string]uint16)
	}
	if len(r.atoms) >= MaxRepositorySize {
		return 0, ErrTooManyAtoms
	}
	idx := uint16(len(r.atoms) + 1)
	r.atoms = append(r.atoms, atom)
	r.indices[atom] = idx
	return idx, nil
}

func (r *Registry) atomString(slot uint16) string {
	if slot == 0 {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.atoms[slot-1]
}

// Build interns a dot-separated scope name into a Scope, truncating to the
// first MaxAtoms non-empty components ("a..b" -> ["a","b"]).
func (r *Registry) Build(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Scope{}, nil
	}
	parts := strings.Split(s, ".")
	var hi, lo uint64
	slot := 0
	for _, atom := range parts {
		if atom == "" {
			continue
		}
		if slot >= MaxAtoms {
			break
		}
		idx, err := r.atomIndex(atom)
		if err != nil {
			return Scope{}, err
		}
		hi, lo = setAtomSlot(hi, lo, slot, idx)
		slot++
	}
	return Scope{hi: hi, lo: lo}, nil
}

func (r *Registry) buildString(s Scope) string {
	parts := make([]string, 0, MaxAtoms)
	for i := 0; i < MaxAtoms; i++ {
		slot := s.atomSlot(i)
		if slot == 0 {
			break
		}
		parts = append(parts, r.atomString(slot))
	}
	return strings.Join(parts, ".")
}

// New interns s against the global registry. It panics on ErrTooManyAtoms,
// which in practice requires ~64K distinct atoms across the process
// lifetime; callers that need to handle overflow gracefully should call
// Global().Build directly.
func New(s string) Scope {
	scope, err := globalRepo.Build(s)
	if err != nil {
		panic(err)
	}
	return scope
}

// DumpEntry is the wire form of one interned atom, used by Registry.Dump.
type DumpEntry = string

// Dump returns the registry's atom table in index order, suitable for
// serialization (e.g. with msgpack) alongside a compiled-grammar bundle.
func (r *Registry) Dump() []DumpEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.atoms))
	copy(out, r.atoms)
	return out
}

// Restore rebuilds a Registry from a previously Dumped atom table. The
// resulting registry assigns the same indices (and therefore the same Scope
// packed values) as the original, so Scopes built before the dump remain
// valid against the restored registry.
func Restore(atoms []DumpEntry) *Registry {
	r := NewRegistry()
	r.atoms = append([]string(nil), atoms...)
	r.indices = make(map[string]uint16, len(atoms))
	for i, a := range r.atoms {
		r.indices[a] = uint16(i + 1)
	}
	return r
}
