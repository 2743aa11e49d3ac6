package state

import "fmt"

// Tokens that address every device at once.
const (
	TokenAll  = "all"
	TokenBoth = "both"
)

// IsAllToken reports whether token addresses every known device.
func IsAllToken(token string) bool {
	return token == TokenAll || token == TokenBoth
}

// Catalog is the fixed, ordered set of device keys the service knows about.
// A Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	keys  []string
	index map[string]struct{}
}

// NewCatalog builds a Catalog from the given keys, preserving their order.
//
// Returns ErrInvalidCatalog if the list is empty, contains an empty or
// duplicated key, or uses one of the all-devices tokens as a key.
func NewCatalog(keys ...string) (Catalog, error) {
	if len(keys) == 0 {
		return Catalog{}, fmt.Errorf("%w: no device keys", ErrInvalidCatalog)
	}

	c := Catalog{
		keys:  make([]string, 0, len(keys)),
		index: make(map[string]struct{}, len(keys)),
	}
	for _, k := range keys {
		switch {
		case k == "":
			return Catalog{}, fmt.Errorf("%w: empty device key", ErrInvalidCatalog)
		case IsAllToken(k):
			return Catalog{}, fmt.Errorf("%w: %q is reserved", ErrInvalidCatalog, k)
		}
		if _, dup := c.index[k]; dup {
			return Catalog{}, fmt.Errorf("%w: duplicate key %q", ErrInvalidCatalog, k)
		}
		c.index[k] = struct{}{}
		c.keys = append(c.keys, k)
	}
	return c, nil
}

// MustCatalog is NewCatalog for static key lists; it panics on error.
func MustCatalog(keys ...string) Catalog {
	c, err := NewCatalog(keys...)
	if err != nil {
		panic(err)
	}
	return c
}

// Keys returns a copy of the device keys in catalog order.
func (c Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of known devices.
func (c Catalog) Len() int {
	return len(c.keys)
}

// Has reports whether key is a known device key. All-devices tokens are not keys.
func (c Catalog) Has(key string) bool {
	_, ok := c.index[key]
	return ok
}

// Resolve maps a request token to the device keys it targets.
//
// A known key resolves to itself; "all" and "both" resolve to every key.
// Anything else returns ErrUnknownDevice.
func (c Catalog) Resolve(token string) ([]string, error) {
	if IsAllToken(token) {
		return c.Keys(), nil
	}
	if c.Has(token) {
		return []string{token}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, token)
}
