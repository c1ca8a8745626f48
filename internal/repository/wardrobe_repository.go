package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/wardrobe-scan/internal/apperror"
)

// ErrOwnerRequired guards against unscoped reads and writes.
var ErrOwnerRequired = errors.New("owner id is required")

// WardrobeItem is one garment detected in an uploaded photo.
type WardrobeItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   string    `gorm:"column:owner_id;size:128;not null;index" json:"owner_id"`
	Category  string    `gorm:"column:category;size:255;not null" json:"category"`
	Color     string    `gorm:"column:color;size:64;not null" json:"color"`
	Material  *string   `gorm:"column:material;size:64" json:"material"`
	Season    *string   `gorm:"column:season;size:64" json:"season"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName overrides the default table name.
func (WardrobeItem) TableName() string {
	return "wardrobe_items"
}

// ItemFilter narrows an owner's items. Empty fields do not filter.
type ItemFilter struct {
	// Category matches case-insensitively as a substring.
	Category string
	// Color matches exactly.
	Color string
}

// CategoryCount is the number of items stored under one category.
type CategoryCount struct {
	Category string
	Count    int64
}

// Aggregation holds per-owner totals.
type Aggregation struct {
	TotalCount int64
	Categories []CategoryCount
	Colors     []string
}

// WardrobeRepository provides owner-scoped persistence for wardrobe items.
type WardrobeRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWardrobeRepository creates a new repository instance.
func NewWardrobeRepository(db *gorm.DB, logger *zap.Logger) *WardrobeRepository {
	return &WardrobeRepository{db: db, logger: logger.Named("wardrobe_repository")}
}

// AutoMigrate ensures the schema is available.
func (r *WardrobeRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&WardrobeItem{})
}

// InsertItems stores all items in one batch and fills in their ids and
// creation times. Every item must carry an owner.
func (r *WardrobeRepository) InsertItems(ctx context.Context, items []WardrobeItem) ([]WardrobeItem, error) {
	const op = "repository.insert_items"
	if len(items) == 0 {
		return []WardrobeItem{}, nil
	}
	for _, item := range items {
		if item.OwnerID == "" {
			return nil, apperror.New(apperror.KindDatabase, op, "", ErrOwnerRequired)
		}
	}

	if err := r.db.WithContext(ctx).Create(&items).Error; err != nil {
		r.logger.Error("batch insert failed", zap.Error(err), zap.Int("count", len(items)))
		return nil, apperror.New(apperror.KindDatabase, op, "", err)
	}
	return items, nil
}

// Query returns the owner's items matching filter.
func (r *WardrobeRepository) Query(ctx context.Context, ownerID string, filter ItemFilter) ([]WardrobeItem, error) {
	const op = "repository.query_items"
	if ownerID == "" {
		return nil, apperror.New(apperror.KindDatabase, op, "", ErrOwnerRequired)
	}

	items := []WardrobeItem{}
	if err := scoped(r.db.WithContext(ctx), ownerID, filter).Order("created_at, id").Find(&items).Error; err != nil {
		return nil, apperror.New(apperror.KindDatabase, op, "", err)
	}
	return items, nil
}

// Summarize aggregates the owner's items by category and color.
func (r *WardrobeRepository) Summarize(ctx context.Context, ownerID string) (*Aggregation, error) {
	const op = "repository.summarize"
	if ownerID == "" {
		return nil, apperror.New(apperror.KindDatabase, op, "", ErrOwnerRequired)
	}

	db := r.db.WithContext(ctx)
	agg := &Aggregation{}
	if err := scoped(db, ownerID, ItemFilter{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC, category").
		Scan(&agg.Categories).Error; err != nil {
		return nil, apperror.New(apperror.KindDatabase, op, "", err)
	}
	if err := scoped(db, ownerID, ItemFilter{}).
		Distinct("color").
		Order("color").
		Pluck("color", &agg.Colors).Error; err != nil {
		return nil, apperror.New(apperror.KindDatabase, op, "", err)
	}

	for _, c := range agg.Categories {
		agg.TotalCount += c.Count
	}
	return agg, nil
}

func scoped(db *gorm.DB, ownerID string, filter ItemFilter) *gorm.DB {
	q := db.Model(&WardrobeItem{}).Where("owner_id = ?", ownerID)
	if category := strings.TrimSpace(filter.Category); category != "" {
		q = q.Where(`LOWER(category) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(category))+"%")
	}
	if filter.Color != "" {
		q = q.Where("color = ?", filter.Color)
	}
	return q
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
