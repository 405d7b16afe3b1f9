package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// fileExt is the extension of every value file.
const fileExt = ".json"

// File stores each key as dir/<key>.json. Single file per key,
// human-readable, portable. Writes go through a temp file and a rename so
// readers never see a torn value.
type File struct {
	dir string

	writeMu sync.Mutex
	seen    *snapshot
	notify  *notifier
	watcher *dirWatcher
	logger  *log.Logger

	closeOnce sync.Once
}

// OpenFile opens a file store rooted at dir, creating it if needed.
func OpenFile(dir string, opts *Options) (*File, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	f := &File{
		dir:    dir,
		seen:   newSnapshot(),
		notify: newNotifier(opts.Logger),
		logger: opts.Logger,
	}

	current, err := f.readAll()
	if err != nil {
		f.notify.close()
		return nil, err
	}
	f.seen.diff(current)

	if opts.WatchExternal {
		match := func(name string) bool {
			return strings.HasSuffix(name, fileExt) && !isTempName(name)
		}
		w, err := startDirWatcher(dir, match, opts.Debounce, f.refresh, opts.Logger)
		if err != nil {
			f.notify.close()
			return nil, err
		}
		f.watcher = w
	}

	return f, nil
}

func (f *File) keyPath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(f.dir, key+fileExt), nil
}

// Get implements Store.Get.
func (f *File) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p, err := f.keyPath(key)
	if err != nil {
		return nil, false, err
	}

	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return b, true, nil
}

// Set implements Store.Set.
func (f *File) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.keyPath(key)
	if err != nil {
		return err
	}

	f.writeMu.Lock()

	tmp, err := os.CreateTemp(f.dir, "."+key+"-*.tmp")
	if err != nil {
		f.writeMu.Unlock()
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		f.writeMu.Unlock()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		f.writeMu.Unlock()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		f.writeMu.Unlock()
		return fmt.Errorf("failed to rename into %s: %w", p, err)
	}

	old := f.seen.record(key, nonNil(value))
	f.writeMu.Unlock()

	f.notify.emit(ChangeEvent{Key: key, OldValue: old, NewValue: cloneBytes(nonNil(value))})
	return nil
}

// OnChange implements Store.OnChange.
func (f *File) OnChange(fn ChangeFunc) func() {
	return f.notify.subscribe(fn)
}

// Close implements Store.Close.
func (f *File) Close() error {
	var closeErr error
	f.closeOnce.Do(func() {
		if f.watcher != nil {
			closeErr = f.watcher.stop()
		}
		f.notify.close()
	})
	return closeErr
}

func (f *File) refresh() {
	f.writeMu.Lock()
	current, err := f.readAll()
	if err != nil {
		f.writeMu.Unlock()
		f.logger.Printf("Error re-reading store after external change: %v", err)
		return
	}
	events := f.seen.diff(current)
	f.writeMu.Unlock()

	for _, ev := range events {
		f.logger.Printf("External change: %s", ev.Key)
		f.notify.emit(ev)
	}
}

func (f *File) readAll() (map[string][]byte, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	out := make(map[string][]byte)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) || isTempName(name) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		out[strings.TrimSuffix(name, fileExt)] = nonNil(b)
	}
	return out, nil
}
