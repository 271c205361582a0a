package transfer

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/utracks/AegisChat/internal/domain"
	"github.com/utracks/AegisChat/internal/util/memzero"
)

// DigestSize is the size of the whole-file BLAKE3 digest.
const DigestSize = 32

// DefaultChunkSize is used when the caller does not pick one.
const DefaultChunkSize = 64 * 1024

var (
	// ErrDigestMismatch means the assembled file does not match the
	// expected digest. The partial file is discarded.
	ErrDigestMismatch = errors.New("file digest mismatch")

	// ErrIncomplete means finalize was called before every chunk arrived.
	ErrIncomplete = errors.New("transfer incomplete")

	// ErrUnknownTransfer means no transfer with that file ID is active.
	ErrUnknownTransfer = errors.New("unknown transfer")

	// ErrDuplicateTransfer means Begin was called twice for one file ID.
	ErrDuplicateTransfer = errors.New("transfer already active")

	// ErrChunkOutOfRange means a chunk index is beyond the manifest.
	ErrChunkOutOfRange = errors.New("chunk index out of range")
)

// state tracks one inbound transfer.
type state struct {
	fileID    string
	total     int64
	chunkSize int
	numChunks uint32
	expected  []byte

	hasher  *blake3.Hasher
	next    uint32            // first index not yet hashed
	pending map[uint32][]byte // buffered out-of-order chunks
	chunks  map[uint32][]byte // all received chunks, in case the caller assembles
	bytes   int64
}

// Manager tracks inbound transfers. Safe for concurrent use across
// different file IDs; submissions for one file are serialised.
type Manager struct {
	mu     sync.Mutex
	active map[string]*state
	events domain.Events
}

// NewManager returns an empty transfer manager.
func NewManager(events domain.Events) *Manager {
	if events == nil {
		events = domain.NopEvents{}
	}
	return &Manager{active: make(map[string]*state), events: events}
}

// Begin registers an inbound transfer described by a manifest.
func (m *Manager) Begin(manifest domain.TransferManifest) error {
	if manifest.TotalSize < 0 || manifest.ChunkSize <= 0 {
		return fmt.Errorf("invalid manifest for %q", manifest.FileID)
	}
	if len(manifest.Digest) != DigestSize {
		return fmt.Errorf("invalid digest length for %q", manifest.FileID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[manifest.FileID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTransfer, manifest.FileID)
	}
	m.active[manifest.FileID] = &state{
		fileID:    manifest.FileID,
		total:     manifest.TotalSize,
		chunkSize: manifest.ChunkSize,
		numChunks: uint32(manifest.Chunks),
		expected:  append([]byte(nil), manifest.Digest...),
		hasher:    blake3.New(DigestSize, nil),
		pending:   make(map[uint32][]byte),
		chunks:    make(map[uint32][]byte),
	}
	return nil
}

// Submit ingests one decrypted chunk and reports progress. Duplicate
// indices are ignored; the returned progress reflects all bytes received
// so far.
func (m *Manager) Submit(fileID string, index uint32, chunk []byte) (domain.TransferProgress, error) {
	m.mu.Lock()
	st, ok := m.active[fileID]
	if !ok {
		m.mu.Unlock()
		return domain.TransferProgress{}, fmt.Errorf("%w: %s", ErrUnknownTransfer, fileID)
	}
	if index >= st.numChunks {
		m.mu.Unlock()
		return domain.TransferProgress{}, fmt.Errorf("%w: %d of %d", ErrChunkOutOfRange, index, st.numChunks)
	}
	if _, dup := st.chunks[index]; !dup {
		buf := append([]byte(nil), chunk...)
		st.chunks[index] = buf
		st.bytes += int64(len(buf))
		if index >= st.next {
			st.pending[index] = buf
			st.drain()
		}
	}
	progress := domain.TransferProgress{FileID: fileID, Bytes: st.bytes, Total: st.total}
	m.mu.Unlock()

	m.events.TransferProgress(progress)
	return progress, nil
}

// drain advances the running digest over the contiguous prefix.
func (st *state) drain() {
	for {
		chunk, ok := st.pending[st.next]
		if !ok {
			return
		}
		_, _ = st.hasher.Write(chunk)
		delete(st.pending, st.next)
		st.next++
	}
}

// Progress returns the current byte count without side effects.
func (m *Manager) Progress(fileID string) (domain.TransferProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.active[fileID]
	if !ok {
		return domain.TransferProgress{}, fmt.Errorf("%w: %s", ErrUnknownTransfer, fileID)
	}
	return domain.TransferProgress{FileID: fileID, Bytes: st.bytes, Total: st.total}, nil
}

// Finalize verifies completeness and the whole-file digest, returning the
// assembled plaintext on success. On any failure the partial file is
// discarded.
func (m *Manager) Finalize(fileID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.active[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransfer, fileID)
	}
	delete(m.active, fileID)

	if uint32(len(st.chunks)) != st.numChunks || st.bytes != st.total {
		st.discard()
		return nil, fmt.Errorf("%w: %d of %d chunks", ErrIncomplete, len(st.chunks), st.numChunks)
	}
	sum := st.hasher.Sum(nil)
	if subtle.ConstantTimeCompare(sum, st.expected) != 1 {
		st.discard()
		return nil, ErrDigestMismatch
	}

	out := make([]byte, 0, st.total)
	for i := uint32(0); i < st.numChunks; i++ {
		out = append(out, st.chunks[i]...)
	}
	return out, nil
}

// Abort drops a transfer and discards whatever arrived.
func (m *Manager) Abort(fileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.active[fileID]; ok {
		st.discard()
		delete(m.active, fileID)
	}
}

func (st *state) discard() {
	for _, c := range st.chunks {
		memzero.Zero(c)
	}
	st.chunks = nil
	st.pending = nil
}

// --- sender side ---

// NewFileID returns a unique transfer identifier.
func NewFileID() string { return uuid.NewString() }

// Describe computes the manifest for an outbound payload.
func Describe(data []byte, chunkSize int) domain.TransferManifest {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	sum := blake3.Sum256(data)
	return domain.TransferManifest{
		FileID:    NewFileID(),
		TotalSize: int64(len(data)),
		ChunkSize: chunkSize,
		Chunks:    chunkCount(int64(len(data)), chunkSize),
		Digest:    sum[:],
	}
}

// Split cuts data into manifest-sized chunks.
func Split(data []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunks := make([][]byte, 0, chunkCount(int64(len(data)), chunkSize))
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

func chunkCount(total int64, chunkSize int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(chunkSize) - 1) / int64(chunkSize))
}
