package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"galleria/internal/appinfo"
	"galleria/internal/database"
	"galleria/internal/media"
	"galleria/internal/storage"
	"galleria/pkg/logger"
)

// MaxConcurrentDBOps limits the number of active SQLite write transactions.
// SQLite allows a single writer even in WAL mode, so writers queue here
// instead of failing with "database is locked".
const MaxConcurrentDBOps = 10

var ErrEmptyUpload = errors.New("uploaded file is empty")

type CreateInput struct {
	Owner       uint
	Blob        media.Blob
	Tags        []string
	Category    string
	Description string
	IsPublic    bool
}

// EditInput holds optional changes. Nil fields are left untouched; a
// non-nil Tags replaces the whole set and an empty Category clears it.
type EditInput struct {
	Blob        *media.Blob
	Tags        *[]string
	Category    *string
	Description *string
	IsPublic    *bool
}

type Service struct {
	DB       *gorm.DB
	Store    storage.Store
	Pipeline *Pipeline

	// Evict, when set, is told about every removed object key.
	Evict func(key string)

	dbGuard chan struct{}
	now     func() time.Time
}

func NewService(db *gorm.DB, store storage.Store, p *Pipeline) *Service {
	return &Service{
		DB:       db,
		Store:    store,
		Pipeline: p,
		dbGuard:  make(chan struct{}, MaxConcurrentDBOps),
		now:      time.Now,
	}
}

func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.dbGuard <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() { <-s.dbGuard }

// stored is a pair of objects written for one upload.
type stored struct {
	original string
	thumb    string
}

func (s *Service) put(ctx context.Context, res Result) (stored, error) {
	originalKey, thumbKey := storage.NewKeys(s.now(), extensionOf(res.Blob))

	if err := s.Store.Put(ctx, originalKey, res.Blob.Data, storage.ContentType(originalKey)); err != nil {
		return stored{}, fmt.Errorf("store original: %w", err)
	}
	if res.Thumb == nil {
		return stored{original: originalKey}, nil
	}
	if err := s.Store.Put(ctx, thumbKey, res.Thumb.Data, "image/jpeg"); err != nil {
		s.remove(stored{original: originalKey})
		return stored{}, fmt.Errorf("store thumbnail: %w", err)
	}
	return stored{original: originalKey, thumb: thumbKey}, nil
}

// remove deletes objects best effort; failures leave orphans and are logged.
func (s *Service) remove(objs stored) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range []string{objs.original, objs.thumb} {
		if key == "" {
			continue
		}
		if err := s.Store.Delete(ctx, key); err != nil {
			logger.LogWarn("Storage: could not delete %s: %v", key, err)
		}
		if s.Evict != nil {
			s.Evict(key)
		}
	}
}

// Create runs the pipeline, stores the original and thumbnail, then writes
// the record with its tags and category in one transaction. Stored objects
// are removed again when the database write fails.
func (s *Service) Create(ctx context.Context, in CreateInput) (*database.Image, error) {
	if len(in.Blob.Data) == 0 {
		return nil, ErrEmptyUpload
	}

	res := s.Pipeline.Process(ctx, in.Blob)

	objs, err := s.put(ctx, res)
	if err != nil {
		return nil, err
	}

	img := &database.Image{
		UserID:       in.Owner,
		OriginalKey:  objs.original,
		ThumbKey:     objs.thumb,
		OriginalName: res.Blob.Name,
		Description:  in.Description,
		IsPublic:     in.IsPublic,
	}
	applyResult(img, res)

	if err := s.acquire(ctx); err != nil {
		s.remove(objs)
		return nil, err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cat, err := database.ResolveCategory(tx, in.Category)
		if err != nil {
			return err
		}
		if cat != nil {
			img.CategoryID = &cat.ID
		}

		tags, err := database.ResolveTags(tx, in.Tags, database.TagSourceManual)
		if err != nil {
			return err
		}
		img.Tags = tags

		if err := tx.Omit("User", "Category", "Tags.*").Create(img).Error; err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
		return nil
	})
	s.release()

	if err != nil {
		s.remove(objs)
		return nil, err
	}

	appinfo.AddImage(int64(img.FileSize) * 1024)
	logger.LogInfo("Image #%d stored for user #%d (%s, %dKB)", img.ID, img.UserID, img.OriginalKey, img.FileSize)

	return database.FindImage(s.DB.WithContext(ctx), img.ID, database.Viewer{UserID: in.Owner})
}

// Update applies in to image id on behalf of v. A replacement file runs the
// full pipeline; EXIF fields it does not carry keep their previous values.
// Replaced objects are deleted only after the commit.
func (s *Service) Update(ctx context.Context, id uint, v database.Viewer, in EditInput) (*database.Image, error) {
	img, err := s.editable(ctx, id, v)
	if err != nil {
		return nil, err
	}

	var old, fresh stored
	oldSize := int64(img.FileSize) * 1024

	if in.Blob != nil {
		if len(in.Blob.Data) == 0 {
			return nil, ErrEmptyUpload
		}
		res := s.Pipeline.Process(ctx, *in.Blob)
		if fresh, err = s.put(ctx, res); err != nil {
			return nil, err
		}
		old = stored{original: img.OriginalKey, thumb: img.ThumbKey}

		img.OriginalKey = fresh.original
		img.ThumbKey = fresh.thumb
		img.OriginalName = res.Blob.Name
		applyResult(img, res)
	}
	if in.Description != nil {
		img.Description = *in.Description
	}
	if in.IsPublic != nil {
		img.IsPublic = *in.IsPublic
	}

	if err := s.acquire(ctx); err != nil {
		s.remove(fresh)
		return nil, err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.Category != nil {
			cat, err := database.ResolveCategory(tx, *in.Category)
			if err != nil {
				return err
			}
			img.Category = cat
			img.CategoryID = nil
			if cat != nil {
				img.CategoryID = &cat.ID
			}
		}

		if err := tx.Omit(clause.Associations).Save(img).Error; err != nil {
			return fmt.Errorf("update image %d: %w", img.ID, err)
		}

		if in.Tags != nil {
			tags, err := database.ResolveTags(tx, *in.Tags, database.TagSourceManual)
			if err != nil {
				return err
			}
			// Replace with an empty slice clears the set.
			if err := tx.Model(img).Association("Tags").Replace(tags); err != nil {
				return fmt.Errorf("replace tags: %w", err)
			}
		}
		return nil
	})
	s.release()

	if err != nil {
		s.remove(fresh)
		return nil, err
	}

	if in.Blob != nil {
		s.remove(old)
		appinfo.ReplaceImage(oldSize, int64(img.FileSize)*1024)
	}
	logger.LogInfo("Image #%d updated by user #%d", img.ID, v.UserID)

	return database.FindImage(s.DB.WithContext(ctx), img.ID, database.Viewer{UserID: img.UserID})
}

// Delete removes the record, its tag links and both stored objects.
func (s *Service) Delete(ctx context.Context, id uint, v database.Viewer) error {
	img, err := s.editable(ctx, id, v)
	if err != nil {
		return err
	}

	if err := s.acquire(ctx); err != nil {
		return err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(img).Association("Tags").Clear(); err != nil {
			return fmt.Errorf("clear tags: %w", err)
		}
		if err := tx.Delete(&database.Image{}, img.ID).Error; err != nil {
			return fmt.Errorf("delete image %d: %w", img.ID, err)
		}
		return nil
	})
	s.release()
	if err != nil {
		return err
	}

	s.remove(stored{original: img.OriginalKey, thumb: img.ThumbKey})
	appinfo.RemoveImage(int64(img.FileSize) * 1024)
	logger.LogInfo("Image #%d deleted by user #%d", img.ID, v.UserID)
	return nil
}

// editable loads an image v may see and change. Invisible images are
// ErrNotFound; visible ones owned by someone else are ErrForbidden.
func (s *Service) editable(ctx context.Context, id uint, v database.Viewer) (*database.Image, error) {
	img, err := database.FindImage(s.DB.WithContext(ctx), id, v)
	if err != nil {
		return nil, err
	}
	if !v.CanEdit(img) {
		return nil, database.ErrForbidden
	}
	return img, nil
}

// applyResult copies derived values onto the record. Optional EXIF fields
// overwrite only when present.
func applyResult(img *database.Image, res Result) {
	m := res.Meta
	img.FileSize = res.SizeKB
	img.Width = m.Width
	img.Height = m.Height

	if m.CameraModel != nil {
		img.CameraModel = m.CameraModel
	}
	if m.ShootTime != nil {
		img.ShootTime = m.ShootTime
	}
	if m.ISO != nil {
		img.ISO = m.ISO
	}
	if m.FStop != nil {
		img.FStop = m.FStop
	}
	if m.ExposureTime != nil {
		img.ExposureTime = m.ExposureTime
	}
	if m.HasGPS() {
		img.Latitude = m.Latitude
		img.Longitude = m.Longitude
		img.Location = m.Location
	}
}

// extensionOf keeps the declared suffix, guessing one from the content when
// the filename has none.
func extensionOf(b media.Blob) string {
	if ext := b.Ext(); ext != "" {
		return ext
	}
	switch http.DetectContentType(b.Data) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".bin"
	}
}
