package persona

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// maxExampleChars bounds how much transcript text goes into the prompt.
const maxExampleChars = 6000

const seedExample = `Cliente: Oi, tem pamonha hoje?
Vendedora: Oi! Tem sim, fresquinha, saiu agora. R$ 14 cada. Quantas você quer?
Cliente: Quero 3
Vendedora: Fechado, 3 pamonhas = R$ 42. Pode buscar na barraca até as 20h!
`

// Examples holds few-shot conversation transcripts loaded from a directory
// of .txt files. The directory is optional; an empty Examples is valid.
type Examples struct {
	dir string

	mu   sync.RWMutex
	text string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// LoadExamples reads every .txt file under dir. A missing directory is
// created and seeded with a sample transcript so the owner sees the format.
func LoadExamples(dir string) (*Examples, error) {
	e := &Examples{dir: dir}
	if dir == "" {
		return e, nil
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create examples dir: %w", err)
		}
		seed := filepath.Join(dir, "exemplo.txt")
		if err := os.WriteFile(seed, []byte(seedExample), 0644); err != nil {
			return nil, fmt.Errorf("seed examples dir: %w", err)
		}
	}

	if err := e.reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Text returns the concatenated transcripts, capped at maxExampleChars.
func (e *Examples) Text() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.text
}

// reload re-reads the directory contents.
func (e *Examples) reload() error {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return fmt.Errorf("read examples dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(e.dir, name))
		if err != nil {
			slog.Warn("skip unreadable example file", "file", name, "error", err)
			continue
		}
		if b.Len()+len(data) > maxExampleChars {
			break
		}
		b.Write(data)
		b.WriteString("\n")
	}

	e.mu.Lock()
	e.text = b.String()
	e.mu.Unlock()

	return nil
}

// Watch reloads the examples whenever the directory changes. Call Close to
// stop the watcher.
func (e *Examples) Watch() error {
	if e.dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(e.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", e.dir, err)
	}

	e.watcher = watcher
	e.done = make(chan struct{})

	go func() {
		for {
			select {
			case <-e.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := e.reload(); err != nil {
					slog.Warn("examples reload failed", "error", err)
				} else {
					slog.Info("examples reloaded", "dir", e.dir)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("examples watcher error", "error", err)
			}
		}
	}()

	return nil
}

// Close stops the watcher if one is running.
func (e *Examples) Close() {
	if e.watcher != nil {
		close(e.done)
		e.watcher.Close()
		e.watcher = nil
	}
}
