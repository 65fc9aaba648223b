// Package sessionstore persists PIX sessions, one slot per buyer.
// Creating a new session overwrites that buyer's previous one, and
// releasing a checkout attempt deliberately leaves the slot in place so
// a reload resumes the same countdown.
package sessionstore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/arenastore/checkout-bff-go/internal/domain"
)

// File stores the per-buyer slots in one JSON file, written atomically.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file-backed store at the given path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) load() map[string]*domain.PixSession {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return map[string]*domain.PixSession{}
	}
	out := map[string]*domain.PixSession{}
	if err := json.Unmarshal(data, &out); err != nil {
		// corrupt file: treat as empty rather than blocking checkout
		return map[string]*domain.PixSession{}
	}
	return out
}

func (f *File) save(all map[string]*domain.PixSession) error {
	data, err := json.Marshal(all)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *File) Get(buyerID string) (*domain.PixSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()[buyerID], nil
}

func (f *File) Put(session *domain.PixSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := f.load()
	all[session.BuyerID] = session
	return f.save(all)
}

func (f *File) Clear(buyerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := f.load()
	if _, ok := all[buyerID]; !ok {
		return nil
	}
	delete(all, buyerID)
	if len(all) == 0 {
		err := os.Remove(f.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return f.save(all)
}

// Memory is an in-process store used in tests and dev mode.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*domain.PixSession
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*domain.PixSession)}
}

func (m *Memory) Get(buyerID string) (*domain.PixSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[buyerID]
	if !ok {
		return nil, nil
	}
	s := *session
	return &s, nil
}

func (m *Memory) Put(session *domain.PixSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *session
	m.sessions[s.BuyerID] = &s
	return nil
}

func (m *Memory) Clear(buyerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, buyerID)
	return nil
}

// AddressFile persists billing addresses per buyer in one JSON file.
// Card number and CVV are never written here. Last writer wins.
type AddressFile struct {
	mu   sync.Mutex
	path string
}

func NewAddressFile(path string) *AddressFile {
	return &AddressFile{path: path}
}

func (a *AddressFile) load() (map[string]*domain.BillingAddress, error) {
	data, err := os.ReadFile(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*domain.BillingAddress{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := map[string]*domain.BillingAddress{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]*domain.BillingAddress{}, nil
	}
	return out, nil
}

func (a *AddressFile) Get(buyerID string) (*domain.BillingAddress, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	all, err := a.load()
	if err != nil {
		return nil, err
	}
	return all[buyerID], nil
}

func (a *AddressFile) Put(buyerID string, addr *domain.BillingAddress) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	all, err := a.load()
	if err != nil {
		return err
	}
	all[buyerID] = addr

	data, err := json.Marshal(all)
	if err != nil {
		return err
	}
	tmp := a.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, a.path)
}
