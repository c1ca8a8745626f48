package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/wardrobe-scan/internal/analysis"
	"github.com/example/wardrobe-scan/internal/apperror"
	"github.com/example/wardrobe-scan/internal/imaging"
	"github.com/example/wardrobe-scan/internal/repository"
)

type fixture struct {
	repo     *stubRepository
	store    *stubStore
	provider *stubProvider
	uc       *WardrobeUseCase
}

func newFixture(opts Options) *fixture {
	f := &fixture{repo: &stubRepository{}, store: newStubStore(), provider: &stubProvider{}}
	f.uc = NewWardrobeUseCase(f.repo, f.store, f.provider, zap.NewNop(), opts)
	f.uc.newID = func() string { return "req-1" }
	return f
}

func (f *fixture) assertNoStagedObjects(t *testing.T) {
	t.Helper()
	if keys := f.store.Keys(); len(keys) != 0 {
		t.Fatalf("expected staged image to be removed, still have %v", keys)
	}
}

func TestSubmitEndToEndJeans(t *testing.T) {
	f := newFixture(Options{})
	f.provider.detections = []analysis.Detection{detection("Jeans", 0.9)}
	f.provider.colors = [][]analysis.ColorScore{denim()}

	result, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 2000, 3000))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	item := result.Items[0]
	if !strings.Contains(strings.ToLower(item.Category), "jeans") {
		t.Fatalf("unexpected category: %s", item.Category)
	}
	if item.Color != "rgb(48, 79, 122)" {
		t.Fatalf("unexpected color: %s", item.Color)
	}
	if item.OwnerID != "user-1" || item.ID == 0 || item.CreatedAt.IsZero() {
		t.Fatalf("expected persisted item, got %+v", item)
	}
	if result.Message != MessageItemsAdded {
		t.Fatalf("unexpected message: %s", result.Message)
	}

	if len(f.store.puts) != 1 || f.store.puts[0] != "transient/user-1/req-1.jpg" {
		t.Fatalf("unexpected staged keys: %v", f.store.puts)
	}
	if len(f.store.deletes) != 1 || f.store.deletes[0] != f.store.puts[0] {
		t.Fatalf("expected staged key to be deleted, got %v", f.store.deletes)
	}
	f.assertNoStagedObjects(t)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.provider.colorInputs[0]))
	if err != nil {
		t.Fatalf("provider received undecodable image: %v", err)
	}
	if cfg.Width != 800 || cfg.Height != 1200 {
		t.Fatalf("expected normalized 800x1200 image, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestSubmitNoDetectionsIsEmptySuccess(t *testing.T) {
	f := newFixture(Options{})

	result, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 40, 40))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Items == nil || len(result.Items) != 0 {
		t.Fatalf("expected empty non-nil items, got %#v", result.Items)
	}
	if result.Message != MessageNoObjects {
		t.Fatalf("unexpected message: %s", result.Message)
	}
	if f.repo.calls != 0 || f.provider.colorCalls != 0 {
		t.Fatalf("expected no insert or color calls, got repo=%d color=%d", f.repo.calls, f.provider.colorCalls)
	}
	f.assertNoStagedObjects(t)
}

func TestSubmitNonClothingIsEmptySuccess(t *testing.T) {
	f := newFixture(Options{})
	f.provider.detections = []analysis.Detection{detection("Car", 0.95), detection("Wheel", 0.8)}

	result, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 40, 40))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(result.Items) != 0 || result.Message != MessageNoClothing {
		t.Fatalf("unexpected result: %+v", result)
	}
	if f.repo.calls != 0 {
		t.Fatalf("expected no database insert, got %d calls", f.repo.calls)
	}
	f.assertNoStagedObjects(t)
}

func TestSubmitWholeImageColorIsSharedAcrossItems(t *testing.T) {
	f := newFixture(Options{})
	f.provider.detections = []analysis.Detection{
		detection("Shirt", 0.9), detection("Person", 0.99), detection("Shoes", 0.7), detection("Outerwear jacket", 0.6),
	}
	f.provider.colors = [][]analysis.ColorScore{denim()}

	result, err := f.uc.Submit(context.Background(), "user-2", testJPEG(t, 40, 40))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 clothing items, got %d", len(result.Items))
	}
	if f.provider.colorCalls != 1 {
		t.Fatalf("expected one color call for the whole image, got %d", f.provider.colorCalls)
	}
	for _, item := range result.Items {
		if item.OwnerID != "user-2" {
			t.Fatalf("unexpected owner: %s", item.OwnerID)
		}
		if item.Color != "rgb(48, 79, 122)" {
			t.Fatalf("expected shared color, got %s", item.Color)
		}
	}
	if len(f.repo.inserted) != 1 || len(f.repo.inserted[0]) != 3 {
		t.Fatalf("expected a single batch of 3, got %v", f.repo.inserted)
	}
}

func TestSubmitPerItemColorAnalyzesEachCrop(t *testing.T) {
	f := newFixture(Options{ColorMode: ColorModePerItem})
	f.provider.detections = []analysis.Detection{detection("Shirt", 0.9), detection("Pants", 0.8)}
	f.provider.colors = [][]analysis.ColorScore{
		{{Color: analysis.RGB{R: 255}, Score: 0.9}},
		{{Color: analysis.RGB{B: 255}, Score: 0.9}},
	}

	result, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 100, 100))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.provider.colorCalls != 2 {
		t.Fatalf("expected one color call per item, got %d", f.provider.colorCalls)
	}
	if result.Items[0].Color != "rgb(255, 0, 0)" || result.Items[1].Color != "rgb(0, 0, 255)" {
		t.Fatalf("unexpected colors: %s, %s", result.Items[0].Color, result.Items[1].Color)
	}
}

func TestSubmitColorFailureDegradesToUnknown(t *testing.T) {
	f := newFixture(Options{})
	f.provider.detections = []analysis.Detection{detection("Dress", 0.9), detection("Coat", 0.9)}
	f.provider.colorErr = errors.New("image properties unavailable")

	result, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 40, 40))
	if err != nil {
		t.Fatalf("color failure must not fail submit: %v", err)
	}
	for _, item := range result.Items {
		if item.Color != UnknownColor {
			t.Fatalf("expected %q, got %q", UnknownColor, item.Color)
		}
	}
}

func TestSubmitEmptyColorListIsUnknown(t *testing.T) {
	f := newFixture(Options{})
	f.provider.detections = []analysis.Detection{detection("Sweater", 0.9)}

	result, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 40, 40))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Items[0].Color != UnknownColor {
		t.Fatalf("expected unknown color, got %s", result.Items[0].Color)
	}
}

func TestSubmitRejectsInvalidInputWithoutExternalCalls(t *testing.T) {
	cases := map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not an image"),
		"oversized": append([]byte{0xFF, 0xD8, 0xFF}, bytes.Repeat([]byte{0}, imaging.MaxUploadSize)...),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(Options{})
			_, err := f.uc.Submit(context.Background(), "user-1", payload)
			if apperror.KindOf(err) != apperror.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(f.store.puts) != 0 || f.provider.calls() != 0 || f.repo.calls != 0 {
				t.Fatalf("expected zero collaborator calls, got puts=%d provider=%d repo=%d",
					len(f.store.puts), f.provider.calls(), f.repo.calls)
			}
		})
	}
}

func TestSubmitNormalizeEncodeFailureIsUnexpected(t *testing.T) {
	// Wide enough to pass validation but beyond what JPEG can encode.
	f := newFixture(Options{MaxWidth: 70000})
	_, err := f.uc.Submit(context.Background(), "user-1", testPNG(t, 70000, 1))
	if apperror.KindOf(err) != apperror.KindUnexpected {
		t.Fatalf("expected unexpected error, got %v", err)
	}
	if len(f.store.puts) != 0 || f.provider.calls() != 0 {
		t.Fatalf("expected no staging or analysis, got puts=%d provider=%d", len(f.store.puts), f.provider.calls())
	}
}

func TestSubmitRejectsPixelBombWithoutExternalCalls(t *testing.T) {
	f := newFixture(Options{})
	_, err := f.uc.Submit(context.Background(), "user-1", withDeclaredSize(t, testPNG(t, 1, 1), 9000, 5000))
	if apperror.KindOf(err) != apperror.KindValidation || !errors.Is(err, imaging.ErrTooManyPixels) {
		t.Fatalf("expected pixel budget validation error, got %v", err)
	}
	if len(f.store.puts) != 0 || f.provider.calls() != 0 {
		t.Fatalf("expected zero collaborator calls")
	}
}

func TestSubmitRequiresOwner(t *testing.T) {
	f := newFixture(Options{})
	_, err := f.uc.Submit(context.Background(), "", testJPEG(t, 10, 10))
	if apperror.KindOf(err) != apperror.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestSubmitStagingFailureSkipsAnalysis(t *testing.T) {
	f := newFixture(Options{})
	f.store.putErr = errors.New("bucket unavailable")

	_, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 40, 40))
	if apperror.KindOf(err) != apperror.KindStorage {
		t.Fatalf("expected storage error, got %v", err)
	}
	if f.provider.calls() != 0 || f.repo.calls != 0 {
		t.Fatal("expected no analysis or persistence after staging failure")
	}
	if len(f.store.deletes) != 0 {
		t.Fatalf("nothing was staged, expected no delete, got %v", f.store.deletes)
	}
}

func TestSubmitDetectionFailureCleansUp(t *testing.T) {
	f := newFixture(Options{})
	f.provider.detectErr = errors.New("quota exceeded")

	_, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 40, 40))
	if apperror.KindOf(err) != apperror.KindAnalysis {
		t.Fatalf("expected analysis error, got %v", err)
	}
	if apperror.Details(err) != "quota exceeded" {
		t.Fatalf("unexpected details: %s", apperror.Details(err))
	}
	if len(f.store.deletes) != 1 {
		t.Fatalf("expected cleanup attempt, got %v", f.store.deletes)
	}
	f.assertNoStagedObjects(t)
}

func TestSubmitPersistenceFailureKeepsOriginalError(t *testing.T) {
	f := newFixture(Options{})
	f.provider.detections = []analysis.Detection{detection("Jacket", 0.9)}
	f.repo.insertErr = errors.New("connection refused")
	f.store.deleteErr = errors.New("delete failed")

	_, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 40, 40))
	if apperror.KindOf(err) != apperror.KindDatabase {
		t.Fatalf("expected database error, got %v", err)
	}
	if apperror.Details(err) != "connection refused" {
		t.Fatalf("cleanup failure must not replace the original error, got %s", apperror.Details(err))
	}
	if len(f.store.deletes) != 1 {
		t.Fatalf("expected cleanup attempt, got %v", f.store.deletes)
	}
}

func TestSubmitCleanupFailureDoesNotFailSuccess(t *testing.T) {
	f := newFixture(Options{})
	f.provider.detections = []analysis.Detection{detection("Top", 0.9)}
	f.store.deleteErr = errors.New("delete failed")

	result, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 40, 40))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
}

func TestSubmitAnalysisDeadlineIsAnalysisError(t *testing.T) {
	f := newFixture(Options{AnalysisTimeout: 20 * time.Millisecond})
	f.provider.block = true

	_, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 40, 40))
	if apperror.KindOf(err) != apperror.KindAnalysis {
		t.Fatalf("expected analysis error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	f.assertNoStagedObjects(t)
}

func TestSubmitUsesFreshKeyPerRequest(t *testing.T) {
	f := newFixture(Options{})
	f.uc.newID = func() func() string {
		n := 0
		return func() string {
			n++
			return []string{"a", "b"}[n-1]
		}
	}()

	for i := 0; i < 2; i++ {
		if _, err := f.uc.Submit(context.Background(), "user-1", testJPEG(t, 10, 10)); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
	}
	if f.store.puts[0] == f.store.puts[1] {
		t.Fatalf("expected distinct keys, got %v", f.store.puts)
	}
}

func TestListScopesToOwner(t *testing.T) {
	f := newFixture(Options{})
	f.repo.queryItems = []repository.WardrobeItem{{ID: 1, OwnerID: "user-1", Category: "Shirt"}}

	filter := repository.ItemFilter{Category: "shirt", Color: "rgb(1, 2, 3)"}
	items, err := f.uc.List(context.Background(), "user-1", filter)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if f.repo.queryOwner != "user-1" || f.repo.queryFilter != filter {
		t.Fatalf("unexpected query: owner=%s filter=%+v", f.repo.queryOwner, f.repo.queryFilter)
	}
}

func TestListEmptyIsNonNil(t *testing.T) {
	f := newFixture(Options{})
	items, err := f.uc.List(context.Background(), "user-1", repository.ItemFilter{})
	if err != nil || items == nil {
		t.Fatalf("expected empty non-nil slice, got %#v %v", items, err)
	}
}

func TestListErrors(t *testing.T) {
	f := newFixture(Options{})
	if _, err := f.uc.List(context.Background(), "", repository.ItemFilter{}); apperror.KindOf(err) != apperror.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}

	f.repo.queryErr = errors.New("timeout")
	if _, err := f.uc.List(context.Background(), "user-1", repository.ItemFilter{}); apperror.KindOf(err) != apperror.KindDatabase {
		t.Fatalf("expected database error, got %v", err)
	}
}

func TestSummaryBuildsCategoryMap(t *testing.T) {
	f := newFixture(Options{})
	f.repo.aggregation = &repository.Aggregation{
		TotalCount: 3,
		Categories: []repository.CategoryCount{{Category: "Shirt", Count: 2}, {Category: "Jeans", Count: 1}},
	}

	summary, err := f.uc.Summary(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if summary.TotalItems != 3 || summary.Categories["Shirt"] != 2 || summary.Categories["Jeans"] != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Colors == nil {
		t.Fatal("expected non-nil colors")
	}
	if f.repo.queryOwner != "user-1" {
		t.Fatalf("unexpected owner: %s", f.repo.queryOwner)
	}
}
