package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"galleria/internal/database"
	"galleria/internal/database/dbtest"
	"galleria/internal/media"
	"galleria/internal/media/mediatest"
	"galleria/internal/storage"
	"galleria/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard, io.Discard)
	os.Exit(m.Run())
}

type fixedResolver string

func (r fixedResolver) Resolve(context.Context, float64, float64) string { return string(r) }

// flakyStore fails Put for keys with the given prefix.
type flakyStore struct {
	storage.Store
	failPrefix string
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte, ct string) error {
	if f.failPrefix != "" && strings.HasPrefix(key, f.failPrefix) {
		return errors.New("disk full")
	}
	return f.Store.Put(ctx, key, data, ct)
}

type env struct {
	svc   *Service
	store *flakyStore
	alice *database.User
	bob   *database.User
	admin *database.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := dbtest.Open(t)
	store := &flakyStore{Store: storage.NewLocalFs(afero.NewMemMapFs())}
	p := NewPipeline(
		media.NewNormalizer(0),
		media.NewExtractor(fixedResolver("北京市-东城区")),
		media.NewThumbnailer(300, 85, 4096),
	)
	svc := NewService(db, store, p)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	return &env{
		svc:   svc,
		store: store,
		alice: dbtest.User(t, db, "alice", false),
		bob:   dbtest.User(t, db, "bob", false),
		admin: dbtest.User(t, db, "root", true),
	}
}

func (e *env) exists(t *testing.T, key string) bool {
	t.Helper()
	_, err := e.store.Get(context.Background(), key)
	if err != nil && !errors.Is(err, storage.ErrNotExist) {
		t.Fatalf("Get(%s) error = %v", key, err)
	}
	return err == nil
}

func canonJPEG(t *testing.T) []byte {
	t.Helper()
	data, err := media.InjectExif(mediatest.JPEG(640, 480), mediatest.TIFF(mediatest.Exif{
		Model:            "Canon EOS R5",
		DateTimeOriginal: "2023:05:10 14:30:00",
		ISO:              200,
		FNumber:          mediatest.Rational{Num: 28, Den: 10},
		ExposureTime:     mediatest.Rational{Num: 1, Den: 250},
		GPS:              &mediatest.GPS{Lat: 39.9042, Lon: 116.4074},
	}))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func tagNames(img *database.Image) []string {
	names := make([]string, 0, len(img.Tags))
	for _, tag := range img.Tags {
		names = append(names, tag.Name)
	}
	sort.Strings(names)
	return names
}

func TestPipeline_Process(t *testing.T) {
	e := newEnv(t)
	data := canonJPEG(t)

	res := e.svc.Pipeline.Process(context.Background(), media.Blob{Name: "IMG_0001.JPG", Data: data})

	if res.SizeKB != len(data)/1024 {
		t.Errorf("SizeKB = %d, want %d", res.SizeKB, len(data)/1024)
	}
	if res.Meta.Width != 640 || res.Meta.Height != 480 {
		t.Errorf("dimensions = %dx%d", res.Meta.Width, res.Meta.Height)
	}
	if res.Meta.Location == nil || *res.Meta.Location != "北京市-东城区" {
		t.Errorf("Location = %v", res.Meta.Location)
	}
	if res.Thumb == nil || res.Thumb.Width != 300 || res.Thumb.Height != 225 {
		t.Fatalf("Thumb = %+v", res.Thumb)
	}
	if res.Thumb.Name != "IMG_0001_thumb.jpg" {
		t.Errorf("Thumb.Name = %q", res.Thumb.Name)
	}

	bad := e.svc.Pipeline.Process(context.Background(), media.Blob{Name: "notes.jpg", Data: []byte("plain text")})
	if bad.Meta.Width != 0 || bad.Thumb != nil || bad.SizeKB != 0 {
		t.Errorf("undecodable input = %+v", bad)
	}
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	img, err := e.svc.Create(ctx, CreateInput{
		Owner:       e.alice.ID,
		Blob:        media.Blob{Name: "trip.jpg", Data: canonJPEG(t)},
		Tags:        []string{"风景", " travel ", "风景", ""},
		Category:    "Holidays",
		Description: "Forbidden City",
		IsPublic:    false,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !strings.HasPrefix(img.OriginalKey, "uploads/2024/05/") || !strings.HasSuffix(img.OriginalKey, ".jpg") {
		t.Errorf("OriginalKey = %q", img.OriginalKey)
	}
	if !strings.HasPrefix(img.ThumbKey, "thumbs/2024/05/") || !strings.HasSuffix(img.ThumbKey, "_thumb.jpg") {
		t.Errorf("ThumbKey = %q", img.ThumbKey)
	}
	if !e.exists(t, img.OriginalKey) || !e.exists(t, img.ThumbKey) {
		t.Error("stored objects missing")
	}

	if img.User.Username != "alice" || img.IsPublic {
		t.Errorf("owner/visibility = %q/%v", img.User.Username, img.IsPublic)
	}
	if img.Category == nil || img.Category.Name != "Holidays" {
		t.Errorf("Category = %+v", img.Category)
	}
	if got := tagNames(img); fmt.Sprint(got) != "[travel 风景]" {
		t.Errorf("tags = %q", got)
	}
	if img.CameraModel == nil || *img.CameraModel != "Canon EOS R5" || img.ISO == nil || *img.ISO != 200 {
		t.Errorf("EXIF fields = %v %v", img.CameraModel, img.ISO)
	}
	if img.Location == nil || img.Latitude == nil || img.Longitude == nil {
		t.Errorf("GPS fields missing: %v %v %v", img.Location, img.Latitude, img.Longitude)
	}
}

func TestCreate_Degraded(t *testing.T) {
	e := newEnv(t)

	img, err := e.svc.Create(context.Background(), CreateInput{
		Owner:    e.alice.ID,
		Blob:     media.Blob{Name: "scan", Data: []byte("%PDF-1.4 not an image")},
		IsPublic: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if img.Width != 0 || img.Height != 0 || img.ThumbKey != "" {
		t.Errorf("degraded record = %dx%d thumb %q", img.Width, img.Height, img.ThumbKey)
	}
	if !strings.HasSuffix(img.OriginalKey, ".bin") {
		t.Errorf("OriginalKey = %q", img.OriginalKey)
	}
	if img.CameraModel != nil || img.Location != nil {
		t.Error("EXIF fields set on undecodable upload")
	}
}

func TestCreate_Failures(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.Create(context.Background(), CreateInput{Owner: e.alice.ID, Blob: media.Blob{Name: "a.jpg"}})
		if !errors.Is(err, ErrEmptyUpload) {
			t.Errorf("error = %v, want ErrEmptyUpload", err)
		}
	})

	t.Run("thumbnail store fails", func(t *testing.T) {
		e := newEnv(t)
		e.store.failPrefix = storage.ThumbnailPrefix
		_, err := e.svc.Create(context.Background(), CreateInput{Owner: e.alice.ID, Blob: media.Blob{Name: "a.jpg", Data: mediatest.JPEG(32, 32)}})
		if err == nil {
			t.Fatal("Create() succeeded")
		}
		var n int64
		e.svc.DB.Model(&database.Image{}).Count(&n)
		if n != 0 {
			t.Errorf("%d rows written", n)
		}
	})

	t.Run("database write fails", func(t *testing.T) {
		e := newEnv(t)
		var keys []string
		e.store.Store = &recordingStore{Store: e.store.Store, puts: &keys}

		_, err := e.svc.Create(context.Background(), CreateInput{
			Owner: 9999, // violates the user foreign key
			Blob:  media.Blob{Name: "a.jpg", Data: mediatest.JPEG(32, 32)},
		})
		if err == nil {
			t.Fatal("Create() succeeded for a missing owner")
		}
		if len(keys) != 2 {
			t.Fatalf("stored %d objects, want 2", len(keys))
		}
		for _, k := range keys {
			if e.exists(t, k) {
				t.Errorf("%s was not cleaned up", k)
			}
		}
	})

	t.Run("tag too long", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.Create(context.Background(), CreateInput{
			Owner: e.alice.ID,
			Blob:  media.Blob{Name: "a.jpg", Data: mediatest.JPEG(32, 32)},
			Tags:  []string{strings.Repeat("x", 31)},
		})
		if !errors.Is(err, database.ErrInvalidName) {
			t.Errorf("Create() error = %v, want ErrInvalidName", err)
		}
	})
}

type recordingStore struct {
	storage.Store
	puts *[]string
}

func (r *recordingStore) Put(ctx context.Context, key string, data []byte, ct string) error {
	*r.puts = append(*r.puts, key)
	return r.Store.Put(ctx, key, data, ct)
}

func TestUpdate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := database.Viewer{UserID: e.alice.ID}

	orig, err := e.svc.Create(ctx, CreateInput{
		Owner:    e.alice.ID,
		Blob:     media.Blob{Name: "trip.jpg", Data: canonJPEG(t)},
		Tags:     []string{"a", "b"},
		Category: "Holidays",
		IsPublic: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("replace image keeps absent EXIF", func(t *testing.T) {
		plain := mediatest.JPEG(200, 100)
		img, err := e.svc.Update(ctx, orig.ID, owner, EditInput{Blob: &media.Blob{Name: "crop.jpg", Data: plain}})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if img.Width != 200 || img.Height != 100 || img.FileSize != len(plain)/1024 {
			t.Errorf("derived = %dx%d %dKB", img.Width, img.Height, img.FileSize)
		}
		if img.CameraModel == nil || *img.CameraModel != "Canon EOS R5" || img.Location == nil {
			t.Error("EXIF fields lost on replacement")
		}
		if img.OriginalKey == orig.OriginalKey || img.OriginalName != "crop.jpg" {
			t.Errorf("original not replaced: %q %q", img.OriginalKey, img.OriginalName)
		}
		if e.exists(t, orig.OriginalKey) || e.exists(t, orig.ThumbKey) {
			t.Error("old objects not deleted")
		}
		if !e.exists(t, img.OriginalKey) || !e.exists(t, img.ThumbKey) {
			t.Error("new objects missing")
		}
		if got := tagNames(img); fmt.Sprint(got) != "[a b]" {
			t.Errorf("tags changed: %q", got)
		}
	})

	t.Run("tags replace whole set", func(t *testing.T) {
		img, err := e.svc.Update(ctx, orig.ID, owner, EditInput{Tags: &[]string{"b", "c"}})
		if err != nil {
			t.Fatal(err)
		}
		if got := tagNames(img); fmt.Sprint(got) != "[b c]" {
			t.Errorf("tags = %q, want [b c]", got)
		}

		img, err = e.svc.Update(ctx, orig.ID, owner, EditInput{Tags: &[]string{}})
		if err != nil {
			t.Fatal(err)
		}
		if len(img.Tags) != 0 {
			t.Errorf("tags = %q, want none", tagNames(img))
		}

		img, err = e.svc.Update(ctx, orig.ID, owner, EditInput{Tags: &[]string{"c", "d"}})
		if err != nil {
			t.Fatal(err)
		}
		if got := tagNames(img); fmt.Sprint(got) != "[c d]" {
			t.Errorf("tags after clear = %q, want [c d]", got)
		}
		var links int64
		e.svc.DB.Table("image_tags").Where("image_id = ?", orig.ID).Count(&links)
		if links != 2 {
			t.Errorf("image_tags rows = %d, want 2", links)
		}
	})

	t.Run("category omit clear resolve", func(t *testing.T) {
		desc := "edited"
		img, err := e.svc.Update(ctx, orig.ID, owner, EditInput{Description: &desc})
		if err != nil {
			t.Fatal(err)
		}
		if img.Category == nil || img.Category.Name != "Holidays" || img.Description != "edited" {
			t.Errorf("category = %+v, description = %q", img.Category, img.Description)
		}
		holidays := img.Category.ID

		empty := ""
		img, _ = e.svc.Update(ctx, orig.ID, owner, EditInput{Category: &empty})
		if img.Category != nil || img.CategoryID != nil {
			t.Errorf("category not cleared: %+v", img.Category)
		}

		ref := fmt.Sprint(holidays)
		img, _ = e.svc.Update(ctx, orig.ID, owner, EditInput{Category: &ref})
		if img.CategoryID == nil || *img.CategoryID != holidays {
			t.Errorf("category by id = %v, want %d", img.CategoryID, holidays)
		}
	})

	t.Run("visibility", func(t *testing.T) {
		private := false
		img, err := e.svc.Update(ctx, orig.ID, owner, EditInput{IsPublic: &private})
		if err != nil || img.IsPublic {
			t.Fatalf("Update() = %v, %v", img, err)
		}
		public := true
		if _, err := e.svc.Update(ctx, orig.ID, owner, EditInput{IsPublic: &public}); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("permissions", func(t *testing.T) {
		desc := "hijacked"
		_, err := e.svc.Update(ctx, orig.ID, database.Viewer{UserID: e.bob.ID}, EditInput{Description: &desc})
		if !errors.Is(err, database.ErrForbidden) {
			t.Errorf("other user error = %v, want ErrForbidden", err)
		}
		_, err = e.svc.Update(ctx, orig.ID, database.Viewer{}, EditInput{Description: &desc})
		if !errors.Is(err, database.ErrForbidden) {
			t.Errorf("anonymous error = %v, want ErrForbidden", err)
		}
		_, err = e.svc.Update(ctx, 424242, owner, EditInput{Description: &desc})
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("missing image error = %v, want ErrNotFound", err)
		}

		img, err := e.svc.Update(ctx, orig.ID, database.Viewer{UserID: e.admin.ID, IsAdmin: true}, EditInput{Description: &desc})
		if err != nil || img.Description != "hijacked" || img.UserID != e.alice.ID {
			t.Errorf("admin update = %+v, %v", img, err)
		}
	})
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	img, err := e.svc.Create(ctx, CreateInput{
		Owner:    e.alice.ID,
		Blob:     media.Blob{Name: "a.png", Data: mediatest.PNG(64, 64)},
		Tags:     []string{"keep-me"},
		IsPublic: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := e.svc.Delete(ctx, img.ID, database.Viewer{UserID: e.bob.ID}); !errors.Is(err, database.ErrForbidden) {
		t.Errorf("Delete() by other user error = %v", err)
	}

	if err := e.svc.Delete(ctx, img.ID, database.Viewer{UserID: e.alice.ID}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if e.exists(t, img.OriginalKey) || e.exists(t, img.ThumbKey) {
		t.Error("objects survived deletion")
	}

	var rows, links, tags int64
	e.svc.DB.Model(&database.Image{}).Count(&rows)
	e.svc.DB.Table("image_tags").Count(&links)
	e.svc.DB.Model(&database.Tag{}).Count(&tags)
	if rows != 0 || links != 0 || tags != 1 {
		t.Errorf("rows=%d links=%d tags=%d, want 0/0/1", rows, links, tags)
	}

	if err := e.svc.Delete(ctx, img.ID, database.Viewer{UserID: e.alice.ID}); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}
