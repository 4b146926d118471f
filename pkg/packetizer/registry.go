package packetizer

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"spacenet/pkg/packet"

	"github.com/puzpuzpuz/xsync/v3"
)

// TypeID is the wire tag of a registered type. Identifiers are chosen by the
// application and are part of the protocol: never reuse or renumber one.
type TypeID uint16

// NilTypeID tags a nil value and cannot be registered.
const NilTypeID TypeID = 0

var (
	ErrNotRegistered  = errors.New("packetizer: type not registered")
	ErrConflict       = errors.New("packetizer: conflicting registration")
	ErrReservedID     = errors.New("packetizer: type id is reserved")
	ErrNilFactory     = errors.New("packetizer: factory returned nil")
	ErrUnexpectedType = errors.New("packetizer: unexpected type")
)

// Factory produces a fresh, zero instance of a registered type.
type Factory func() packet.Packetizable

type entry struct {
	typ     reflect.Type
	factory Factory
}

// Registry maps type identifiers to factories. A single registry is meant to
// be shared by every per-session Packetizer; it is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex // serializes registrations
	byID   *xsync.MapOf[TypeID, entry]
	byType *xsync.MapOf[reflect.Type, TypeID]
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   xsync.NewMapOf[TypeID, entry](),
		byType: xsync.NewMapOf[reflect.Type, TypeID](),
	}
}

// Register adds factory under id. Registering the same type under the same id
// again is a no-op; any other reuse of id or of the type is ErrConflict.
func Register[T packet.Packetizable](r *Registry, id TypeID, factory func() T) error {
	return r.register(id, func() packet.Packetizable { return factory() })
}

// MustRegister is Register for init-time tables; it panics on error.
func MustRegister[T packet.Packetizable](r *Registry, id TypeID, factory func() T) {
	if err := Register(r, id, factory); err != nil {
		panic(err)
	}
}

func (r *Registry) register(id TypeID, factory Factory) error {
	if id == NilTypeID {
		return ErrReservedID
	}
	sample := factory()
	if isNil(sample) {
		return fmt.Errorf("%w: id %d", ErrNilFactory, id)
	}
	typ := reflect.TypeOf(sample)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byID.Load(id); ok {
		if e.typ == typ {
			return nil
		}
		return fmt.Errorf("%w: id %d already names %v, not %v", ErrConflict, id, e.typ, typ)
	}
	if other, ok := r.byType.Load(typ); ok {
		return fmt.Errorf("%w: %v already registered as id %d", ErrConflict, typ, other)
	}
	r.byID.Store(id, entry{typ: typ, factory: factory})
	r.byType.Store(typ, id)
	return nil
}

// IDOf returns the identifier registered for the runtime type of v.
func (r *Registry) IDOf(v packet.Packetizable) (TypeID, bool) {
	if v == nil {
		return NilTypeID, false
	}
	return r.byType.Load(reflect.TypeOf(v))
}

// New instantiates the type registered under id.
func (r *Registry) New(id TypeID) (packet.Packetizable, bool) {
	e, ok := r.byID.Load(id)
	if !ok {
		return nil, false
	}
	return e.factory(), true
}

// Has reports whether id is registered.
func (r *Registry) Has(id TypeID) bool {
	_, ok := r.byID.Load(id)
	return ok
}

// Len is the number of registered types.
func (r *Registry) Len() int { return r.byID.Size() }

func isNil(v packet.Packetizable) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
