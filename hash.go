package chashtable

import "github.com/zeebo/xxh3"

// StringConfig is a ready-made Config[string] for tables keyed directly
// on their string value, hashing with xxh3. No value is ever reported
// dead.
type StringConfig struct{}

func (StringConfig) Hash(value string) (uintptr, bool) {
	return uintptr(xxh3.HashString(value)), false
}

func (StringConfig) NotFound() string { return "" }

// BytesConfig is the []byte analogue of StringConfig.
type BytesConfig struct{}

func (BytesConfig) Hash(value []byte) (uintptr, bool) {
	return uintptr(xxh3.Hash(value)), false
}

func (BytesConfig) NotFound() []byte { return nil }

// StringLookup is a Lookup[string] for the common case of searching
// for an exact string match.
type StringLookup struct {
	Key string
}

func (l StringLookup) Hash() uintptr {
	return uintptr(xxh3.HashString(l.Key))
}

func (l StringLookup) Equals(value string) (bool, bool) {
	return value == l.Key, false
}
