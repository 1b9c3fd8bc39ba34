package graphbin

// Class is the identity of a class of instances. Instances point at
// their Class; a Context maps it to the name written on the wire.
//
// A class may carry a pair of hooks. Serialize turns an instance into a
// record of plain fields; Deserialize rebuilds an instance from such a
// record. Either may be nil.
type Class struct {
	name        string
	serialize   func(instance *Value) (*Value, error)
	deserialize func(fields *Value) (*Value, error)
}

// ClassOption configures a Class.
type ClassOption func(*Class)

// WithSerializer sets the hook that extracts plain fields from an
// instance. The hook must return a record (or instance) whose fields are
// encoded in place of the instance's own.
func WithSerializer(fn func(instance *Value) (*Value, error)) ClassOption {
	return func(c *Class) {
		c.serialize = fn
	}
}

// WithDeserializer sets the hook that reconstructs an instance from the
// decoded field record.
//
// The record is a stand-in while its fields are decoded: a field that
// refers back to the instance being decoded resolves to the record, not
// to the value the hook returns.
func WithDeserializer(fn func(fields *Value) (*Value, error)) ClassOption {
	return func(c *Class) {
		c.deserialize = fn
	}
}

// NewClass creates a class. The name is descriptive only; the wire name
// is the identifier passed to Context.RegisterClass.
func NewClass(name string, opts ...ClassOption) *Class {
	c := &Class{name: name}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the descriptive class name.
func (c *Class) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// New creates an instance of the class.
func (c *Class) New(fields ...Field) *Value {
	return Instance(c, fields...)
}

// HasHooks reports whether the class has custom serialization hooks.
func (c *Class) HasHooks() (serialize, deserialize bool) {
	return c.serialize != nil, c.deserialize != nil
}

// Callable is a function that may travel inside a value graph by its
// registered name. Its code is never serialized.
type Callable struct {
	name string
	fn   func(args ...*Value) (*Value, error)
}

// NewCallable creates a callable.
func NewCallable(name string, fn func(args ...*Value) (*Value, error)) *Callable {
	return &Callable{name: name, fn: fn}
}

// Name returns the descriptive callable name.
func (c *Callable) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Call invokes the callable. A callable without a function returns
// undefined.
func (c *Callable) Call(args ...*Value) (*Value, error) {
	if c == nil || c.fn == nil {
		return Undefined(), nil
	}
	return c.fn(args...)
}
