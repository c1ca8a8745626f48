package usecase

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/example/wardrobe-scan/internal/analysis"
	"github.com/example/wardrobe-scan/internal/repository"
	"github.com/example/wardrobe-scan/internal/storage"
)

type stubRepository struct {
	inserted    [][]repository.WardrobeItem
	insertErr   error
	queryOwner  string
	queryFilter repository.ItemFilter
	queryItems  []repository.WardrobeItem
	queryErr    error
	aggregation *repository.Aggregation
	summaryErr  error
	calls       int
}

func (s *stubRepository) InsertItems(ctx context.Context, items []repository.WardrobeItem) ([]repository.WardrobeItem, error) {
	s.calls++
	s.inserted = append(s.inserted, items)
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	out := make([]repository.WardrobeItem, len(items))
	for i, item := range items {
		item.ID = uint(i + 1)
		item.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		out[i] = item
	}
	return out, nil
}

func (s *stubRepository) Query(ctx context.Context, ownerID string, filter repository.ItemFilter) ([]repository.WardrobeItem, error) {
	s.calls++
	s.queryOwner = ownerID
	s.queryFilter = filter
	return s.queryItems, s.queryErr
}

func (s *stubRepository) Summarize(ctx context.Context, ownerID string) (*repository.Aggregation, error) {
	s.calls++
	s.queryOwner = ownerID
	return s.aggregation, s.summaryErr
}

// stubStore wraps an in-memory store with failure injection and call counts.
type stubStore struct {
	*storage.MemoryStore
	putErr    error
	deleteErr error
	puts      []string
	deletes   []string
}

func newStubStore() *stubStore {
	return &stubStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *stubStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.puts = append(s.puts, key)
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.Put(ctx, key, data, contentType)
}

func (s *stubStore) Delete(ctx context.Context, key string) error {
	s.deletes = append(s.deletes, key)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx, key)
}

type stubProvider struct {
	mu          sync.Mutex
	detections  []analysis.Detection
	detectErr   error
	colors      [][]analysis.ColorScore
	colorErr    error
	block       bool
	detectCalls int
	colorCalls  int
	colorInputs [][]byte
}

func (s *stubProvider) DetectObjects(ctx context.Context, imageBytes []byte) ([]analysis.Detection, error) {
	s.mu.Lock()
	s.detectCalls++
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.detections, s.detectErr
}

func (s *stubProvider) DominantColors(ctx context.Context, imageBytes []byte) ([]analysis.ColorScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colorCalls++
	s.colorInputs = append(s.colorInputs, imageBytes)
	if s.colorErr != nil {
		return nil, s.colorErr
	}
	if len(s.colors) == 0 {
		return nil, nil
	}
	idx := s.colorCalls - 1
	if idx >= len(s.colors) {
		idx = len(s.colors) - 1
	}
	return s.colors[idx], nil
}

func (s *stubProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detectCalls + s.colorCalls
}

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill := color.RGBA{R: 48, G: 79, B: 122, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, nil); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// withDeclaredSize rewrites a PNG header to claim width x height pixels
// without carrying the pixel data.
func withDeclaredSize(t *testing.T, data []byte, width, height uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint32(out[16:20], width)
	binary.BigEndian.PutUint32(out[20:24], height)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func detection(label string, confidence float32) analysis.Detection {
	return analysis.Detection{
		Label:      label,
		Confidence: confidence,
		Box:        analysis.BoundingBox{MinX: 0.1, MinY: 0.1, MaxX: 0.9, MaxY: 0.9},
	}
}

func denim() []analysis.ColorScore {
	return []analysis.ColorScore{{Color: analysis.RGB{R: 48, G: 79, B: 122}, Score: 0.8}}
}
