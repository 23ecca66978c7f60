package playbook

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vietddude/overseer/internal/core/domain"
)

// ErrPlaybookNotFound is returned for an unknown playbook name.
var ErrPlaybookNotFound = errors.New("playbook not found")

// Library holds the loaded playbooks. Reload swaps the whole set only
// after every document validates, so readers never observe a half-bad
// library.
type Library struct {
	dir string

	mu    sync.RWMutex
	books map[string]*domain.Playbook
}

// NewLibrary loads the directory and returns the library.
func NewLibrary(dir string) (*Library, error) {
	books, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return &Library{dir: dir, books: books}, nil
}

// Dir returns the watched directory.
func (l *Library) Dir() string { return l.dir }

// Get returns a playbook by name.
func (l *Library) Get(name string) (*domain.Playbook, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pb, ok := l.books[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlaybookNotFound, name)
	}
	return pb, nil
}

// Names returns the loaded playbook names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.books))
	for name := range l.books {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reload re-reads the directory. On any validation error the previous
// set stays active.
func (l *Library) Reload() error {
	books, err := LoadDir(l.dir)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.books = books
	l.mu.Unlock()
	return nil
}
