package graphbin

import (
	"sort"
	"sync"
)

// Context holds the registries an encoder and decoder consult: classes,
// restricted callables and named tokens, each mapped to a string
// identifier in both directions.
//
// Register everything before encoding or decoding. Lookups take a read
// lock, so one Context can serve concurrent Encode and Decode calls.
//
// Example:
//
//	ctx := graphbin.NewContext()
//	point := graphbin.NewClass("Point")
//	ctx.RegisterClass("Point", point)
//	data, err := ctx.Encode(point.New(graphbin.F("x", graphbin.Int(1))))
type Context struct {
	mu sync.RWMutex

	nameToClass map[string]*Class
	classToName map[*Class]string

	nameToCallable map[string]*Callable
	callableToName map[*Callable]string

	nameToToken map[string]*Value
	tokenToName map[*Value]string
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{
		nameToClass:    make(map[string]*Class),
		classToName:    make(map[*Class]string),
		nameToCallable: make(map[string]*Callable),
		callableToName: make(map[*Callable]string),
		nameToToken:    make(map[string]*Value),
		tokenToName:    make(map[*Value]string),
	}
}

// RegisterClass maps id to class in both directions. Registering the
// same class under a second id makes the second id the one encoded.
func (c *Context) RegisterClass(id string, class *Class) {
	if class == nil {
		panic("graphbin: RegisterClass with nil class")
	}
	c.mu.Lock()
	c.nameToClass[id] = class
	c.classToName[class] = id
	c.mu.Unlock()
}

// RegisterCallable maps id to a restricted callable in both directions.
func (c *Context) RegisterCallable(id string, fn *Callable) {
	if fn == nil {
		panic("graphbin: RegisterCallable with nil callable")
	}
	c.mu.Lock()
	c.nameToCallable[id] = fn
	c.callableToName[fn] = id
	c.mu.Unlock()
}

// RegisterToken maps id to a shared token in both directions. The token
// is encoded by name and every decode resolves to this same value.
func (c *Context) RegisterToken(id string, token *Value) {
	if token == nil || token.kind != KindToken {
		panic("graphbin: RegisterToken with non-token value")
	}
	c.mu.Lock()
	c.nameToToken[id] = token
	c.tokenToName[token] = id
	c.mu.Unlock()
}

// LookupClass returns the class registered under id.
func (c *Context) LookupClass(id string) (*Class, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	class, ok := c.nameToClass[id]
	return class, ok
}

// ClassID returns the identifier a class is registered under.
func (c *Context) ClassID(class *Class) (string, bool) {
	if c == nil || class == nil {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.classToName[class]
	return id, ok
}

// LookupCallable returns the callable registered under id.
func (c *Context) LookupCallable(id string) (*Callable, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.nameToCallable[id]
	return fn, ok
}

// CallableID returns the identifier a callable is registered under.
func (c *Context) CallableID(fn *Callable) (string, bool) {
	if c == nil || fn == nil {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.callableToName[fn]
	return id, ok
}

// LookupToken returns the token registered under id.
func (c *Context) LookupToken(id string) (*Value, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.nameToToken[id]
	return tok, ok
}

// TokenID returns the identifier a token is registered under.
func (c *Context) TokenID(token *Value) (string, bool) {
	if c == nil || token == nil {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.tokenToName[token]
	return id, ok
}

// ClassIDs returns the registered class identifiers, sorted.
func (c *Context) ClassIDs() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.nameToClass)
}

// CallableIDs returns the registered callable identifiers, sorted.
func (c *Context) CallableIDs() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.nameToCallable)
}

// TokenIDs returns the registered token identifiers, sorted.
func (c *Context) TokenIDs() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.nameToToken)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode encodes v with default options.
func (c *Context) Encode(v *Value) ([]byte, error) {
	return EncodeWithOptions(c, v, DefaultEncodeOptions())
}

// EncodeWithOptions encodes v with the given options.
func (c *Context) EncodeWithOptions(v *Value, opts EncodeOptions) ([]byte, error) {
	return EncodeWithOptions(c, v, opts)
}

// Decode decodes data with default options.
func (c *Context) Decode(data []byte) (*Value, error) {
	return DecodeWithOptions(c, data, DefaultDecodeOptions())
}

// DecodeWithOptions decodes data with the given options.
func (c *Context) DecodeWithOptions(data []byte, opts DecodeOptions) (*Value, error) {
	return DecodeWithOptions(c, data, opts)
}
