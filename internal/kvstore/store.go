// Package kvstore persists a small closed set of named string values that
// must survive daemon restarts (vehicle identity, SIM identity, battery pack
// code).
//
// The default backend is a flat file with one "<key>=<value>" line per entry.
// All operations on a file are serialized by a single mutex shared by every
// FileStore opened on the same path in this process. The lock is process
// local: two processes writing the same file are not coordinated. Use the
// sqlite backend when several processes share the store.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownKey   = errors.New("unknown key")
	ErrInvalidValue = errors.New("invalid value")
)

// maxLine bounds one "<key>=<value>" line in the file backend.
const maxLine = 1 << 20

// MaxValueLen is the longest value any backend accepts. It leaves room for
// the key prefix inside maxLine.
const MaxValueLen = maxLine - 64

// Key identifies one persisted entry. The integer value is the on-disk key.
type Key int

const (
	KeyVIN Key = iota
	KeyICCID
	KeyBatteryPackCode
)

var keyNames = [...]string{
	KeyVIN:             "vin",
	KeyICCID:           "iccid",
	KeyBatteryPackCode: "battery_pack_code",
}

// Keys returns every known key in on-disk order.
func Keys() []Key {
	out := make([]Key, len(keyNames))
	for i := range keyNames {
		out[i] = Key(i)
	}
	return out
}

func (k Key) Valid() bool { return k >= 0 && int(k) < len(keyNames) }

func (k Key) String() string {
	if k.Valid() {
		return keyNames[k]
	}
	return "key(" + strconv.Itoa(int(k)) + ")"
}

// ParseKey accepts either the key name ("vin") or its integer form ("0").
func ParseKey(s string) (Key, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range keyNames {
		if n == s {
			return Key(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Key(n).Valid() {
		return Key(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKey, s)
}

// Store is implemented by every backend.
type Store interface {
	// Read returns the value for key. ok is false when the key was never
	// written; that is not an error.
	Read(ctx context.Context, key Key) (value string, ok bool, err error)
	// Write replaces the value for key.
	Write(ctx context.Context, key Key, value string) error
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key Key) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Type string `mapstructure:"type" yaml:"type" json:"type" validate:"omitempty,oneof=file sqlite"`
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

const (
	TypeFile   = "file"
	TypeSQLite = "sqlite"

	DefaultPath = "./data/tbox.kv"
)

// Open builds the backend described by cfg. An empty type means file.
func Open(cfg Config) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	switch cfg.Type {
	case "", TypeFile:
		return NewFileStore(path), nil
	case TypeSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported store type: %s (supported: [%s %s])", cfg.Type, TypeFile, TypeSQLite)
	}
}

func validate(key Key, value string) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKey, int(key))
	}
	if strings.ContainsAny(value, "=\n\r") {
		return fmt.Errorf("%w: must not contain '=' or line breaks", ErrInvalidValue)
	}
	if len(value) > MaxValueLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidValue, MaxValueLen)
	}
	return nil
}
