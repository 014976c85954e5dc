package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory namespaced vector index using brute-force inner
// product search. Sized for personal contact corpora (thousands of vectors),
// persisted to a single file between restarts.
type MemoryIndex struct {
	dimensions int
	namespaces map[string][]*Entry
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		namespaces: make(map[string][]*Entry),
	}, nil
}

// Add appends entries to the namespace, creating it if needed.
func (m *MemoryIndex) Add(ctx context.Context, namespace string, entries []*Entry) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if len(e.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(e.Vector), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, e.Vector)
		m.namespaces[namespace] = append(m.namespaces[namespace], &Entry{
			ID:     e.ID,
			Owner:  e.Owner,
			Text:   e.Text,
			Vector: vec,
		})
	}
	return nil
}

// Search returns the top-k entries in namespace by inner product
// (cosine similarity for normalized vectors). A missing namespace yields no results.
func (m *MemoryIndex) Search(ctx context.Context, namespace string, query []float32, k int) ([]*Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.namespaces[namespace]
	if k <= 0 || len(entries) == 0 {
		return nil, nil
	}
	results := make([]*Result, len(entries))
	for i, e := range entries {
		var dot float64
		for j := 0; j < m.dimensions; j++ {
			dot += float64(query[j] * e.Vector[j])
		}
		results[i] = &Result{ID: e.ID, Owner: e.Owner, Text: e.Text, Score: dot}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// RemoveByOwner removes every entry in namespace with the given owner key.
func (m *MemoryIndex) RemoveByOwner(ctx context.Context, namespace, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.namespaces[namespace]
	if !ok {
		return nil
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Owner != owner {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(m.namespaces, namespace)
		return nil
	}
	m.namespaces[namespace] = kept
	return nil
}

// DeleteNamespace drops a namespace. Deleting a missing namespace is a no-op.
func (m *MemoryIndex) DeleteNamespace(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

// Namespaces returns the names of all non-empty namespaces, sorted.
func (m *MemoryIndex) Namespaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.namespaces))
	for ns := range m.namespaces {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// Size returns the total number of vectors across all namespaces.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, entries := range m.namespaces {
		total += len(entries)
	}
	return total
}

// Save persists the index to path. Directory is created if needed.
// Format: dimension (4), namespace count (4), then per namespace: name, entry
// count, and per entry: id, owner, text (each length-prefixed), vector.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(m.namespaces))); err != nil {
		return fmt.Errorf("write namespace count: %w", err)
	}
	for ns, entries := range m.namespaces {
		if err := writeString(f, ns); err != nil {
			return fmt.Errorf("write namespace: %w", err)
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(len(entries))); err != nil {
			return fmt.Errorf("write entry count: %w", err)
		}
		for _, e := range entries {
			if err := writeString(f, e.ID); err != nil {
				return fmt.Errorf("write id: %w", err)
			}
			if err := writeString(f, e.Owner); err != nil {
				return fmt.Errorf("write owner: %w", err)
			}
			if err := writeString(f, e.Text); err != nil {
				return fmt.Errorf("write text: %w", err)
			}
			if _, err := f.Write(float32SliceToBytes(e.Vector)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, nsCount uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &nsCount); err != nil {
		return fmt.Errorf("read namespace count: %w", err)
	}
	namespaces := make(map[string][]*Entry, nsCount)
	vecBuf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < nsCount; i++ {
		ns, err := readString(f)
		if err != nil {
			return fmt.Errorf("read namespace: %w", err)
		}
		var count uint32
		if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
			return fmt.Errorf("read entry count: %w", err)
		}
		entries := make([]*Entry, 0, count)
		for j := uint32(0); j < count; j++ {
			id, err := readString(f)
			if err != nil {
				return fmt.Errorf("read id: %w", err)
			}
			owner, err := readString(f)
			if err != nil {
				return fmt.Errorf("read owner: %w", err)
			}
			text, err := readString(f)
			if err != nil {
				return fmt.Errorf("read text: %w", err)
			}
			if _, err := io.ReadFull(f, vecBuf); err != nil {
				return fmt.Errorf("read vector: %w", err)
			}
			entries = append(entries, &Entry{
				ID:     id,
				Owner:  owner,
				Text:   text,
				Vector: bytesToFloat32Slice(vecBuf),
			})
		}
		namespaces[ns] = entries
	}
	m.mu.Lock()
	m.namespaces = namespaces
	m.mu.Unlock()
	return nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

func writeString(w io.Writer, s string) error {
	b := []byte(s)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
