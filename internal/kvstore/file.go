package kvstore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loykin/tbox/internal/fsutil"
	"github.com/loykin/tbox/internal/metrics"
	"github.com/spf13/afero"
)

// one mutex per backing file, shared by every FileStore in the process
var (
	locksMu sync.Mutex
	locks   = make(map[string]*sync.Mutex)
)

func lockFor(path string) *sync.Mutex {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	locksMu.Lock()
	defer locksMu.Unlock()
	mu, ok := locks[abs]
	if !ok {
		mu = &sync.Mutex{}
		locks[abs] = mu
	}
	return mu
}

// FileStore keeps entries in a flat file and rewrites the whole file on
// every change. The file never holds more lines than there are keys.
type FileStore struct {
	fs   afero.Fs
	path string
	mu   *sync.Mutex
}

type FileOption func(*FileStore)

// WithFs makes the store operate on fs instead of the OS filesystem.
func WithFs(fs afero.Fs) FileOption {
	return func(s *FileStore) { s.fs = fs }
}

func NewFileStore(path string, opts ...FileOption) *FileStore {
	clean := filepath.Clean(path)
	s := &FileStore{fs: afero.NewOsFs(), path: clean, mu: lockFor(clean)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Read(ctx context.Context, key Key) (string, bool, error) {
	if !key.Valid() {
		return "", false, fmt.Errorf("%w: %d", ErrUnknownKey, int(key))
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok, err := s.scan(key)
	metrics.RecordStoreOp("read", err, time.Since(start).Seconds())
	return v, ok, err
}

func (s *FileStore) Write(ctx context.Context, key Key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.update(func(m map[Key]string) bool {
		m[key] = value
		return true
	})
	metrics.RecordStoreOp("write", err, time.Since(start).Seconds())
	return err
}

func (s *FileStore) Delete(ctx context.Context, key Key) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKey, int(key))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.update(func(m map[Key]string) bool {
		if _, ok := m[key]; !ok {
			return false
		}
		delete(m, key)
		return true
	})
	metrics.RecordStoreOp("delete", err, time.Since(start).Seconds())
	return err
}

func (s *FileStore) Close() error { return nil }

// scan returns the first line matching key. Caller holds s.mu.
func (s *FileStore) scan(key Key) (string, bool, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()
	sc := newScanner(f)
	for sc.Scan() {
		if k, v, ok := parseLine(sc.Text()); ok && k == key {
			return v, true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", false, fmt.Errorf("read %s: %w", s.path, err)
	}
	return "", false, nil
}

// update loads every entry, applies fn and rewrites the file when fn reports
// a change. Caller holds s.mu.
func (s *FileStore) update(fn func(map[Key]string) bool) error {
	m, err := s.load()
	if err != nil {
		return err
	}
	if !fn(m) {
		return nil
	}
	return fsutil.WriteFileAtomic(s.fs, s.path, render(m), 0o644)
}

func (s *FileStore) load() (map[Key]string, error) {
	m := make(map[Key]string)
	f, err := s.fs.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()
	sc := newScanner(f)
	for sc.Scan() {
		if k, v, ok := parseLine(sc.Text()); ok {
			// first occurrence wins, matching scan
			if _, dup := m[k]; !dup {
				m[k] = v
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return m, nil
}

func newScanner(f afero.File) *bufio.Scanner {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	return sc
}

// parseLine splits "<int>=<value>". Lines without '=' or with a non-numeric
// key are malformed and skipped by callers. Integer keys outside the known
// set are kept so a rewrite does not drop entries written by newer builds.
func parseLine(line string) (Key, string, bool) {
	line = strings.TrimSuffix(line, "\r")
	k, v, found := strings.Cut(line, "=")
	if !found {
		return 0, "", false
	}
	n, err := strconv.Atoi(strings.TrimSpace(k))
	if err != nil {
		return 0, "", false
	}
	return Key(n), v, true
}

func render(m map[Key]string) []byte {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strconv.Itoa(int(k)))
		b.WriteByte('=')
		b.WriteString(m[k])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
