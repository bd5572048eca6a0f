package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const storeExt = ".db"

// Stores manages one Store per business entity, each in its own file under
// a common directory. Stores are opened lazily and kept open until Close.
type Stores struct {
	dir string

	mu   sync.Mutex
	open map[string]*Store
}

// NewStores returns a manager for the stores under dir. Nothing is created
// on disk until the first write.
func NewStores(dir string) *Stores {
	return &Stores{dir: dir, open: make(map[string]*Store)}
}

// Dir returns the directory holding the store files.
func (s *Stores) Dir() string { return s.dir }

// ValidateEntity rejects keys that would escape the stores directory.
func ValidateEntity(entity string) error {
	if entity == "" || entity == "." || strings.Contains(entity, "..") || strings.ContainsAny(entity, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidEntity, entity)
	}
	return nil
}

func (s *Stores) path(entity string) string {
	return filepath.Join(s.dir, entity+storeExt)
}

// get returns the open store for entity. With create false, a missing store
// file yields (nil, nil).
func (s *Stores) get(entity string, create bool) (*Store, error) {
	if err := ValidateEntity(entity); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.open[entity]; ok {
		return st, nil
	}

	p := s.path(entity)
	if !create {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		} else if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
	}

	st, err := Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: opening store %s: %w", ErrStorage, entity, err)
	}
	s.open[entity] = st
	return st, nil
}

// EnsureSchema creates the entity's store and schema if missing. It is safe
// to call repeatedly and concurrently.
func (s *Stores) EnsureSchema(entity string) error {
	_, err := s.get(entity, true)
	return err
}

// Exists reports whether any line of the invoice number is stored for
// entity. A missing store holds no invoices.
func (s *Stores) Exists(entity, invoiceNumber string) (bool, error) {
	st, err := s.get(entity, false)
	if err != nil || st == nil {
		return false, err
	}
	ok, err := st.HasInvoice(invoiceNumber)
	if err != nil {
		return false, fmt.Errorf("%w: checking invoice %s: %w", ErrStorage, invoiceNumber, err)
	}
	return ok, nil
}

// InsertLines stores all items of inv for entity, creating the store if
// needed. Either every line is written or none is.
func (s *Stores) InsertLines(entity string, inv Invoice) (int, error) {
	st, err := s.get(entity, true)
	if err != nil {
		return 0, err
	}
	n, err := st.SaveInvoice(inv)
	if err != nil {
		return 0, fmt.Errorf("%w: saving invoice %s: %w", ErrStorage, inv.Number, err)
	}
	return n, nil
}

// ReadAll returns every line of entity ordered by id. A missing store yields
// an empty slice and is not created.
func (s *Stores) ReadAll(entity string) ([]Line, error) {
	return s.Query(entity, Filter{})
}

// Query returns the lines of entity matching f, ordered by id.
func (s *Stores) Query(entity string, f Filter) ([]Line, error) {
	st, err := s.get(entity, false)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return []Line{}, nil
	}
	lines, err := st.Lines(f)
	if err != nil {
		return nil, fmt.Errorf("%w: reading lines of %s: %w", ErrStorage, entity, err)
	}
	return lines, nil
}

// Delete removes one line by id and returns the number of rows removed.
// Unknown ids and missing stores remove nothing.
func (s *Stores) Delete(entity string, id int64) (int64, error) {
	st, err := s.get(entity, false)
	if err != nil || st == nil {
		return 0, err
	}
	n, err := st.DeleteLine(id)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting line %d of %s: %w", ErrStorage, id, entity, err)
	}
	return n, nil
}

// Entities lists the keys of all entities with a store, sorted.
func (s *Stores) Entities() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: listing stores: %w", ErrStorage, err)
	}

	entities := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, storeExt) {
			continue
		}
		entities = append(entities, strings.TrimSuffix(name, storeExt))
	}
	sort.Strings(entities)
	return entities, nil
}

// Close closes every open store.
func (s *Stores) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for entity, st := range s.open {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", entity, err))
		}
		delete(s.open, entity)
	}
	return errors.Join(errs...)
}
