package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/wardrobe-scan/internal/analysis"
	"github.com/example/wardrobe-scan/internal/apperror"
	"github.com/example/wardrobe-scan/internal/imaging"
	"github.com/example/wardrobe-scan/internal/logging"
	"github.com/example/wardrobe-scan/internal/repository"
	"github.com/example/wardrobe-scan/internal/storage"
)

const (
	// UnknownColor is stored when color extraction fails.
	UnknownColor = "unknown"

	ColorModeWholeImage = "whole_image"
	ColorModePerItem    = "per_item"

	MessageNoObjects  = "No objects detected in the photo"
	MessageNoClothing = "No clothing items detected in the photo"
	MessageItemsAdded = "Clothing items added to wardrobe"
)

var errOwnerRequired = errors.New("authenticated owner is required")

// WardrobeRepository defines the persistence operations needed by the use case.
type WardrobeRepository interface {
	InsertItems(ctx context.Context, items []repository.WardrobeItem) ([]repository.WardrobeItem, error)
	Query(ctx context.Context, ownerID string, filter repository.ItemFilter) ([]repository.WardrobeItem, error)
	Summarize(ctx context.Context, ownerID string) (*repository.Aggregation, error)
}

// Options tunes image preparation, color extraction and remote call deadlines.
type Options struct {
	MaxWidth  int
	ColorMode string
	KeyPrefix string

	RequestTimeout  time.Duration
	StorageTimeout  time.Duration
	AnalysisTimeout time.Duration
	DatabaseTimeout time.Duration
	CleanupTimeout  time.Duration
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxWidth:        800,
		ColorMode:       ColorModeWholeImage,
		KeyPrefix:       "transient",
		RequestTimeout:  60 * time.Second,
		StorageTimeout:  10 * time.Second,
		AnalysisTimeout: 20 * time.Second,
		DatabaseTimeout: 5 * time.Second,
		CleanupTimeout:  5 * time.Second,
	}
}

// SubmitResult is the outcome of a successful Submit. Items is empty, never
// nil, when nothing was recognized.
type SubmitResult struct {
	Message string
	Items   []repository.WardrobeItem
}

// WardrobeUseCase orchestrates photo ingestion and wardrobe queries.
type WardrobeUseCase struct {
	repo     WardrobeRepository
	store    storage.ObjectStore
	provider analysis.Provider
	logger   *zap.Logger
	opts     Options
	newID    func() string
}

// NewWardrobeUseCase constructs a new use case instance. Zero option fields
// take their defaults.
func NewWardrobeUseCase(repo WardrobeRepository, store storage.ObjectStore, provider analysis.Provider, logger *zap.Logger, opts Options) *WardrobeUseCase {
	return &WardrobeUseCase{
		repo:     repo,
		store:    store,
		provider: provider,
		logger:   logger.Named("wardrobe_usecase"),
		opts:     withDefaults(opts),
		newID:    uuid.NewString,
	}
}

// Submit prepares one photo, stages it, detects garments, persists one item
// per garment and always removes the staged image before returning.
func (uc *WardrobeUseCase) Submit(ctx context.Context, ownerID string, imageBytes []byte) (*SubmitResult, error) {
	requestID := uc.newID()
	opLogger := logging.WithOperation(uc.logger, "usecase.submit", requestID).With(zap.String("owner_id", ownerID))

	if ownerID == "" {
		return nil, apperror.New(apperror.KindAuth, "usecase.submit", requestID, errOwnerRequired)
	}
	if err := imaging.Validate(imageBytes); err != nil {
		return nil, apperror.New(apperror.KindValidation, "usecase.validate", requestID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.opts.RequestTimeout)
	defer cancel()

	normalized, err := imaging.Normalize(imageBytes, uc.opts.MaxWidth)
	if err != nil {
		kind := apperror.KindValidation
		if errors.Is(err, imaging.ErrEncode) {
			kind = apperror.KindUnexpected
			opLogger.Error("failed to encode normalized image", zap.Error(err))
		}
		return nil, apperror.New(kind, "usecase.normalize", requestID, err)
	}

	cleanup := &cleanupStack{timeout: uc.opts.CleanupTimeout}
	defer cleanup.run(ctx, opLogger)

	key := storage.ObjectKey(uc.opts.KeyPrefix, ownerID, requestID)
	if err := uc.withTimeout(ctx, uc.opts.StorageTimeout, func(ctx context.Context) error {
		return uc.store.Put(ctx, key, normalized, imaging.MimeJPEG)
	}); err != nil {
		wrapped := apperror.New(apperror.KindStorage, "usecase.stage_image", requestID, err)
		opLogger.Error("failed to stage image", zap.Error(wrapped))
		return nil, wrapped
	}
	cleanup.push("storage.delete", func(ctx context.Context) error {
		return uc.store.Delete(ctx, key)
	})

	var detections []analysis.Detection
	if err := uc.withTimeout(ctx, uc.opts.AnalysisTimeout, func(ctx context.Context) error {
		var err error
		detections, err = uc.provider.DetectObjects(ctx, normalized)
		return err
	}); err != nil {
		wrapped := apperror.New(apperror.KindAnalysis, "usecase.detect_objects", requestID, err)
		opLogger.Error("object detection failed", zap.Error(wrapped))
		return nil, wrapped
	}
	if len(detections) == 0 {
		opLogger.Info("no objects detected")
		return &SubmitResult{Message: MessageNoObjects, Items: []repository.WardrobeItem{}}, nil
	}

	clothing := FilterClothing(detections)
	if len(clothing) == 0 {
		opLogger.Info("no clothing detected", zap.Int("detections", len(detections)))
		return &SubmitResult{Message: MessageNoClothing, Items: []repository.WardrobeItem{}}, nil
	}

	colors := uc.extractColors(ctx, normalized, clothing, opLogger)
	records := make([]repository.WardrobeItem, len(clothing))
	for i, d := range clothing {
		records[i] = repository.WardrobeItem{
			OwnerID:  ownerID,
			Category: d.Label,
			Color:    colors[i],
		}
	}

	var inserted []repository.WardrobeItem
	if err := uc.withTimeout(ctx, uc.opts.DatabaseTimeout, func(ctx context.Context) error {
		var err error
		inserted, err = uc.repo.InsertItems(ctx, records)
		return err
	}); err != nil {
		wrapped := apperror.New(apperror.KindDatabase, "usecase.insert_items", requestID, err)
		opLogger.Error("failed to persist wardrobe items", zap.Error(wrapped))
		return nil, wrapped
	}

	opLogger.Info("wardrobe items added", zap.Int("count", len(inserted)))
	return &SubmitResult{Message: MessageItemsAdded, Items: inserted}, nil
}

// List returns the owner's items matching filter.
func (uc *WardrobeUseCase) List(ctx context.Context, ownerID string, filter repository.ItemFilter) ([]repository.WardrobeItem, error) {
	if ownerID == "" {
		return nil, apperror.New(apperror.KindAuth, "usecase.list", "", errOwnerRequired)
	}

	var items []repository.WardrobeItem
	if err := uc.withTimeout(ctx, uc.opts.DatabaseTimeout, func(ctx context.Context) error {
		var err error
		items, err = uc.repo.Query(ctx, ownerID, filter)
		return err
	}); err != nil {
		wrapped := apperror.New(apperror.KindDatabase, "usecase.list", "", err)
		logging.WithOperation(uc.logger, "usecase.list", "").Error("failed to query wardrobe", zap.Error(wrapped))
		return nil, wrapped
	}
	if items == nil {
		items = []repository.WardrobeItem{}
	}
	return items, nil
}

// extractColors returns one color per detection. In whole-image mode every
// detection shares the dominant color of the full photo; in per-item mode each
// detection's bounding box is analyzed on its own. Failures degrade to
// UnknownColor.
func (uc *WardrobeUseCase) extractColors(ctx context.Context, normalized []byte, detections []analysis.Detection, logger *zap.Logger) []string {
	colors := make([]string, len(detections))

	if uc.opts.ColorMode != ColorModePerItem {
		shared := uc.dominantColor(ctx, normalized, logger)
		for i := range colors {
			colors[i] = shared
		}
		return colors
	}

	for i, d := range detections {
		crop, err := imaging.Crop(normalized, imaging.Region{MinX: d.Box.MinX, MinY: d.Box.MinY, MaxX: d.Box.MaxX, MaxY: d.Box.MaxY})
		if err != nil {
			logger.Warn("failed to crop detection", zap.String("label", d.Label), zap.Error(err))
			colors[i] = UnknownColor
			continue
		}
		colors[i] = uc.dominantColor(ctx, crop, logger)
	}
	return colors
}

func (uc *WardrobeUseCase) dominantColor(ctx context.Context, imageBytes []byte, logger *zap.Logger) string {
	var colors []analysis.ColorScore
	err := uc.withTimeout(ctx, uc.opts.AnalysisTimeout, func(ctx context.Context) error {
		var err error
		colors, err = uc.provider.DominantColors(ctx, imageBytes)
		return err
	})
	if err != nil {
		logger.Warn("color extraction failed", zap.Error(err))
		return UnknownColor
	}
	if len(colors) == 0 {
		return UnknownColor
	}
	return colors[0].Color.String()
}

func (uc *WardrobeUseCase) withTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = def.MaxWidth
	}
	if opts.ColorMode == "" {
		opts.ColorMode = def.ColorMode
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = def.StorageTimeout
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = def.AnalysisTimeout
	}
	if opts.DatabaseTimeout <= 0 {
		opts.DatabaseTimeout = def.DatabaseTimeout
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = def.CleanupTimeout
	}
	return opts
}
