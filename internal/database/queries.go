package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("not allowed")

	// ErrInvalidName marks a tag or category name the schema cannot hold.
	ErrInvalidName = errors.New("invalid name")

	// ErrUnknownCategory marks a numeric category reference with no row behind it.
	ErrUnknownCategory = errors.New("unknown category")
)

// Viewer identifies who is reading. The zero value is an anonymous visitor.
type Viewer struct {
	UserID  uint
	IsAdmin bool
}

func (v Viewer) Authenticated() bool { return v.UserID != 0 }

// CanEdit reports whether v may modify or delete img.
func (v Viewer) CanEdit(img *Image) bool {
	return v.Authenticated() && (v.IsAdmin || img.UserID == v.UserID)
}

// Visible limits images to public ones plus the viewer's own.
func Visible(v Viewer) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !v.Authenticated() {
			return db.Where("images.is_public = ?", true)
		}
		return db.Where("(images.is_public = ? OR images.user_id = ?)", true, v.UserID)
	}
}

// WithRelations preloads what the API representation needs.
func WithRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("User").Preload("Category").Preload("Tags", func(db *gorm.DB) *gorm.DB {
		return db.Order("tags.id")
	})
}

// ImageFilter mirrors the list endpoint's query parameters.
type ImageFilter struct {
	Query      string
	CategoryID *uint
	Start      *time.Time
	End        *time.Time
	OnlyMine   bool
}

// Apply adds the filter conditions. Query matches tag names, location and
// camera model, case-insensitively. Dates bound the shooting time.
func (f ImageFilter) Apply(v Viewer) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Scopes(Visible(v))

		if f.OnlyMine {
			db = db.Where("images.user_id = ?", v.UserID)
		}
		if f.CategoryID != nil {
			db = db.Where("images.category_id = ?", *f.CategoryID)
		}
		if f.Start != nil {
			db = db.Where("images.shoot_time >= ?", *f.Start)
		}
		if f.End != nil {
			db = db.Where("images.shoot_time <= ?", *f.End)
		}
		if q := strings.TrimSpace(f.Query); q != "" {
			like := "%" + escapeLike(strings.ToLower(q)) + "%"
			db = db.Where(
				`(images.id IN (SELECT it.image_id FROM image_tags it JOIN tags t ON t.id = it.tag_id WHERE FOLD(t.name) LIKE ? ESCAPE '\')`+
					` OR FOLD(IFNULL(images.location, '')) LIKE ? ESCAPE '\'`+
					` OR FOLD(IFNULL(images.camera_model, '')) LIKE ? ESCAPE '\')`,
				like, like, like,
			)
		}
		return db
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListImages returns one page (1-based) of visible images, newest upload first.
func ListImages(db *gorm.DB, v Viewer, f ImageFilter, page, limit int) ([]Image, int64, error) {
	var total int64
	if err := db.Model(&Image{}).Scopes(f.Apply(v)).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count images: %w", err)
	}

	images := []Image{}
	if total == 0 {
		return images, 0, nil
	}

	err := db.Scopes(f.Apply(v), WithRelations).
		Order("images.upload_time DESC").
		Order("images.id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&images).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list images: %w", err)
	}
	return images, total, nil
}

// FindImage loads one image with relations. Images the viewer may not see
// are reported as ErrNotFound.
func FindImage(db *gorm.DB, id uint, v Viewer) (*Image, error) {
	var img Image
	err := db.Scopes(Visible(v), WithRelations).First(&img, "images.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find image %d: %w", id, err)
	}
	return &img, nil
}

// NormalizeTagNames trims, drops empties and duplicates, keeping order.
func NormalizeTagNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// ResolveTags returns a Tag row per name, creating missing ones with source.
func ResolveTags(tx *gorm.DB, names []string, source int) ([]Tag, error) {
	names = NormalizeTagNames(names)
	tags := make([]Tag, 0, len(names))
	for _, name := range names {
		if len([]rune(name)) > 30 {
			return nil, fmt.Errorf("%w: tag %q is longer than 30 characters", ErrInvalidName, name)
		}
		var tag Tag
		if err := tx.Where(Tag{Name: name}).Attrs(Tag{Source: source}).FirstOrCreate(&tag).Error; err != nil {
			return nil, fmt.Errorf("resolve tag %q: %w", name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// ResolveCategory maps a category reference to a row. An empty reference
// means no category. A numeric reference is an id and must exist; anything
// else is a name, created when missing.
func ResolveCategory(tx *gorm.DB, ref string) (*Category, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	var cat Category
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		err := tx.First(&cat, id).Error
		if err == nil {
			return &cat, nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, id)
		}
		return nil, fmt.Errorf("load category %d: %w", id, err)
	}

	if len([]rune(ref)) > 50 {
		return nil, fmt.Errorf("%w: category %q is longer than 50 characters", ErrInvalidName, ref)
	}
	if err := tx.Where(Category{Name: ref}).FirstOrCreate(&cat).Error; err != nil {
		return nil, fmt.Errorf("resolve category %q: %w", ref, err)
	}
	return &cat, nil
}

// ListCategories returns all categories by name.
func ListCategories(db *gorm.DB) ([]Category, error) {
	cats := []Category{}
	if err := db.Order("name").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// TagCount is a tag with the number of images visible to the viewer.
type TagCount struct {
	Tag
	Count int64 `json:"count"`
}

// ListTags returns every tag with usage counts, most used first.
func ListTags(db *gorm.DB, v Viewer) ([]TagCount, error) {
	visible := "SELECT id FROM images WHERE is_public = ?"
	args := []interface{}{true}
	if v.Authenticated() {
		visible += " OR user_id = ?"
		args = append(args, v.UserID)
	}

	out := []TagCount{}
	err := db.Model(&Tag{}).
		Select("tags.*, COUNT(it.image_id) AS count").
		Joins("LEFT JOIN image_tags it ON it.tag_id = tags.id AND it.image_id IN ("+visible+")", args...).
		Group("tags.id").
		Order("count DESC, tags.name").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return out, nil
}
