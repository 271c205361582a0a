package transfer_test

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/utracks/AegisChat/internal/domain"
	"github.com/utracks/AegisChat/internal/transfer"
)

// payload returns deterministic test bytes.
func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

// receive pushes every chunk in the given order and finalizes.
func receive(t *testing.T, m *transfer.Manager, manifest domain.TransferManifest, chunks [][]byte, order []int) ([]byte, error) {
	t.Helper()
	if err := m.Begin(manifest); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, i := range order {
		if _, err := m.Submit(manifest.FileID, uint32(i), chunks[i]); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	return m.Finalize(manifest.FileID)
}

func TestTransfer_InOrder(t *testing.T) {
	data := payload(10_000)
	manifest := transfer.Describe(data, 1024)
	chunks := transfer.Split(data, manifest.ChunkSize)

	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	got, err := receive(t, transfer.NewManager(nil), manifest, chunks, order)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("assembled file differs from original")
	}
}

func TestTransfer_ShuffledChunks(t *testing.T) {
	data := payload(300_000)
	manifest := transfer.Describe(data, 16*1024)
	chunks := transfer.Split(data, manifest.ChunkSize)

	order := rand.New(rand.NewSource(42)).Perm(len(chunks))
	got, err := receive(t, transfer.NewManager(nil), manifest, chunks, order)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("assembled file differs from original")
	}
}

func TestTransfer_TamperedChunk(t *testing.T) {
	data := payload(8_192)
	manifest := transfer.Describe(data, 1024)
	chunks := transfer.Split(data, manifest.ChunkSize)

	tampered := append([]byte(nil), chunks[3]...)
	tampered[0] ^= 1
	chunks[3] = tampered

	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	m := transfer.NewManager(nil)
	if _, err := receive(t, m, manifest, chunks, order); !errors.Is(err, transfer.ErrDigestMismatch) {
		t.Fatalf("want ErrDigestMismatch, got %v", err)
	}
	// The failed transfer is gone, not retryable.
	if _, err := m.Progress(manifest.FileID); !errors.Is(err, transfer.ErrUnknownTransfer) {
		t.Fatalf("want ErrUnknownTransfer after failed finalize, got %v", err)
	}
}

func TestTransfer_MissingChunk(t *testing.T) {
	data := payload(8_192)
	manifest := transfer.Describe(data, 1024)
	chunks := transfer.Split(data, manifest.ChunkSize)

	order := []int{0, 1, 2, 4, 5, 6, 7} // chunk 3 never arrives
	if _, err := receive(t, transfer.NewManager(nil), manifest, chunks, order); !errors.Is(err, transfer.ErrIncomplete) {
		t.Fatalf("want ErrIncomplete, got %v", err)
	}
}

func TestTransfer_DuplicateChunksIgnored(t *testing.T) {
	data := payload(4_096)
	manifest := transfer.Describe(data, 1024)
	chunks := transfer.Split(data, manifest.ChunkSize)

	m := transfer.NewManager(nil)
	if err := m.Begin(manifest); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, i := range []int{0, 0, 1, 1, 2, 3, 3} {
		if _, err := m.Submit(manifest.FileID, uint32(i), chunks[i]); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	got, err := m.Finalize(manifest.FileID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("assembled file differs from original")
	}
}

func TestTransfer_ProgressCounts(t *testing.T) {
	data := payload(4_000)
	manifest := transfer.Describe(data, 1024)
	chunks := transfer.Split(data, manifest.ChunkSize)

	m := transfer.NewManager(nil)
	if err := m.Begin(manifest); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	var want int64
	for i, chunk := range chunks {
		p, err := m.Submit(manifest.FileID, uint32(i), chunk)
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		want += int64(len(chunk))
		if p.Bytes != want || p.Total != manifest.TotalSize {
			t.Fatalf("progress = %d/%d, want %d/%d", p.Bytes, p.Total, want, manifest.TotalSize)
		}
	}
}

func TestTransfer_Errors(t *testing.T) {
	data := payload(2_048)
	manifest := transfer.Describe(data, 1024)

	m := transfer.NewManager(nil)
	if _, err := m.Submit(manifest.FileID, 0, data[:1024]); !errors.Is(err, transfer.ErrUnknownTransfer) {
		t.Fatalf("want ErrUnknownTransfer, got %v", err)
	}
	if err := m.Begin(manifest); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Begin(manifest); !errors.Is(err, transfer.ErrDuplicateTransfer) {
		t.Fatalf("want ErrDuplicateTransfer, got %v", err)
	}
	if _, err := m.Submit(manifest.FileID, 99, data[:1024]); !errors.Is(err, transfer.ErrChunkOutOfRange) {
		t.Fatalf("want ErrChunkOutOfRange, got %v", err)
	}
	m.Abort(manifest.FileID)
	if _, err := m.Progress(manifest.FileID); !errors.Is(err, transfer.ErrUnknownTransfer) {
		t.Fatalf("want ErrUnknownTransfer after abort, got %v", err)
	}
}

func TestDescribe_EmptyFile(t *testing.T) {
	manifest := transfer.Describe(nil, 1024)
	if manifest.Chunks != 0 || manifest.TotalSize != 0 {
		t.Fatalf("empty manifest = %+v", manifest)
	}
	m := transfer.NewManager(nil)
	if err := m.Begin(manifest); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	got, err := m.Finalize(manifest.FileID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty transfer yielded %d bytes", len(got))
	}
}
