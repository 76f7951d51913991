package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tradeescrow/storage"
)

// Manager provides RLP-encoded record storage on top of a key-value backend.
// Keys are hashed with keccak256 before they reach the backend.
type Manager struct {
	db storage.Database
	// mu serialises read-modify-write helpers such as KVAppend.
	mu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state: manager unavailable")
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.NewBatch()
	if err := m.appendInto(batch, key, value); err != nil {
		return err
	}
	return batch.Write()
}

func (m *Manager) appendInto(batch *Batch, key []byte, value []byte) error {
	data, err := m.get(kvKey(key))
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return batch.Put(key, list)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// Batch stages RLP-encoded writes that reach the backend atomically.
type Batch struct {
	inner storage.Batch
}

// NewBatch starts a write batch against the manager's backend.
func (m *Manager) NewBatch() *Batch {
	return &Batch{inner: m.db.NewBatch()}
}

// Put encodes value and stages it under key.
func (b *Batch) Put(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	b.inner.Put(kvKey(key), encoded)
	return nil
}

// Write commits every staged entry.
func (b *Batch) Write() error {
	if b.inner.Len() == 0 {
		return nil
	}
	return b.inner.Write()
}

// Update runs fn with a fresh batch while holding the manager's write lock and
// commits the batch if fn succeeds. Ledgers use it for read-modify-write
// sequences spanning several keys.
func (m *Manager) Update(fn func(b *Batch) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.NewBatch()
	if err := fn(batch); err != nil {
		return err
	}
	return batch.Write()
}
