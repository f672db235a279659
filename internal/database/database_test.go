package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"galleria/internal/database"
	"galleria/internal/database/dbtest"
)

func strPtr(s string) *string { return &s }

func seedImage(t *testing.T, db *gorm.DB, owner *database.User, public bool, mutate func(*database.Image)) *database.Image {
	t.Helper()
	img := &database.Image{
		UserID:      owner.ID,
		OriginalKey: "uploads/2024/01/x.jpg",
		IsPublic:    public,
	}
	if mutate != nil {
		mutate(img)
	}
	if err := db.Create(img).Error; err != nil {
		t.Fatalf("create image: %v", err)
	}
	return img
}

func TestResolveTags(t *testing.T) {
	db := dbtest.Open(t)

	first, err := database.ResolveTags(db, []string{" 猫 ", "风景", "", "猫"}, database.TagSourceManual)
	if err != nil {
		t.Fatalf("ResolveTags() error = %v", err)
	}
	if len(first) != 2 || first[0].Name != "猫" || first[1].Name != "风景" {
		t.Fatalf("ResolveTags() = %+v", first)
	}

	second, err := database.ResolveTags(db, []string{"风景", "海边"}, database.TagSourceAI)
	if err != nil {
		t.Fatalf("ResolveTags() error = %v", err)
	}
	if second[0].ID != first[1].ID {
		t.Errorf("existing tag was recreated: %d vs %d", second[0].ID, first[1].ID)
	}
	if second[0].Source != database.TagSourceManual || second[1].Source != database.TagSourceAI {
		t.Errorf("sources = %d, %d", second[0].Source, second[1].Source)
	}

	var count int64
	db.Model(&database.Tag{}).Count(&count)
	if count != 3 {
		t.Errorf("tag rows = %d, want 3", count)
	}

	if _, err := database.ResolveTags(db, []string{"这是一个非常非常非常非常非常非常非常非常非常非常非常长的标签名称"}, 0); err == nil {
		t.Error("expected error for overlong tag")
	}
}

func TestResolveCategory(t *testing.T) {
	db := dbtest.Open(t)

	travel, err := database.ResolveCategory(db, "旅行")
	if err != nil || travel == nil || travel.ID == 0 {
		t.Fatalf("ResolveCategory(name) = %+v, %v", travel, err)
	}

	tests := []struct {
		name   string
		ref    string
		wantID uint
		isNil  bool
	}{
		{"empty clears", "", 0, true},
		{"whitespace clears", "   ", 0, true},
		{"existing name", "旅行", travel.ID, false},
		{"existing id", "1", travel.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := database.ResolveCategory(db, tt.ref)
			if err != nil {
				t.Fatalf("ResolveCategory() error = %v", err)
			}
			if tt.isNil {
				if got != nil {
					t.Errorf("ResolveCategory() = %+v, want nil", got)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("ResolveCategory() = %+v, want id %d", got, tt.wantID)
			}
		})
	}

	if got, err := database.ResolveCategory(db, "42"); !errors.Is(err, database.ErrUnknownCategory) || got != nil {
		t.Errorf("ResolveCategory(42) = %+v, %v, want ErrUnknownCategory", got, err)
	}
	var n int64
	db.Model(&database.Category{}).Count(&n)
	if n != 1 {
		t.Errorf("categories = %d after unknown id, want 1", n)
	}
}

func TestListImages_VisibilityAndFilters(t *testing.T) {
	db := dbtest.Open(t)
	alice := dbtest.User(t, db, "alice", false)
	bob := dbtest.User(t, db, "bob", false)

	shot := func(day int) *time.Time {
		ts := time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)
		return &ts
	}

	cat, _ := database.ResolveCategory(db, "旅行")
	tags, _ := database.ResolveTags(db, []string{"海边"}, 0)

	public := seedImage(t, db, alice, true, func(i *database.Image) {
		i.ShootTime = shot(1)
		i.Location = strPtr("广东省-深圳市")
		i.CategoryID = &cat.ID
	})
	private := seedImage(t, db, alice, false, func(i *database.Image) {
		i.ShootTime = shot(10)
		i.CameraModel = strPtr("Canon EOS R5")
		i.Tags = tags
	})
	bobs := seedImage(t, db, bob, true, func(i *database.Image) {
		i.ShootTime = shot(20)
		i.CameraModel = strPtr("ÖLYMPUS Ärzte Edition")
		i.Tags = tags
	})

	alicev := database.Viewer{UserID: alice.ID}
	ids := func(imgs []database.Image) []uint {
		out := make([]uint, len(imgs))
		for i, img := range imgs {
			out[i] = img.ID
		}
		return out
	}

	tests := []struct {
		name   string
		viewer database.Viewer
		filter database.ImageFilter
		want   []uint
	}{
		{"anonymous sees public", database.Viewer{}, database.ImageFilter{}, []uint{bobs.ID, public.ID}},
		{"owner sees own private", alicev, database.ImageFilter{}, []uint{bobs.ID, private.ID, public.ID}},
		{"other user", database.Viewer{UserID: bob.ID}, database.ImageFilter{}, []uint{bobs.ID, public.ID}},
		{"only mine", alicev, database.ImageFilter{OnlyMine: true}, []uint{private.ID, public.ID}},
		{"category", alicev, database.ImageFilter{CategoryID: &cat.ID}, []uint{public.ID}},
		{"date range", alicev, database.ImageFilter{Start: shot(5), End: shot(15)}, []uint{private.ID}},
		{"tag query", alicev, database.ImageFilter{Query: "海"}, []uint{bobs.ID, private.ID}},
		{"camera query case-insensitive", alicev, database.ImageFilter{Query: "canon"}, []uint{private.ID}},
		{"location query", database.Viewer{}, database.ImageFilter{Query: "深圳"}, []uint{public.ID}},
		{"non-ascii query folds case", database.Viewer{}, database.ImageFilter{Query: "ärzte"}, []uint{bobs.ID}},
		{"like wildcards are literal", alicev, database.ImageFilter{Query: "%"}, []uint{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := database.ListImages(db, tt.viewer, tt.filter, 1, 50)
			if err != nil {
				t.Fatalf("ListImages() error = %v", err)
			}
			gotIDs := ids(got)
			if int(total) != len(tt.want) || len(gotIDs) != len(tt.want) {
				t.Fatalf("ListImages() = %v (total %d), want %v", gotIDs, total, tt.want)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.want[i] {
					t.Errorf("ListImages() = %v, want %v", gotIDs, tt.want)
					break
				}
			}
		})
	}

	page2, total, err := database.ListImages(db, alicev, database.ImageFilter{}, 2, 2)
	if err != nil || total != 3 || len(page2) != 1 || page2[0].ID != public.ID {
		t.Errorf("page 2 = %v, total %d, err %v", ids(page2), total, err)
	}
}

func TestFindImage(t *testing.T) {
	db := dbtest.Open(t)
	alice := dbtest.User(t, db, "alice", false)
	bob := dbtest.User(t, db, "bob", false)
	private := seedImage(t, db, alice, false, nil)

	if _, err := database.FindImage(db, private.ID, database.Viewer{UserID: bob.ID}); err != database.ErrNotFound {
		t.Errorf("FindImage(other) error = %v, want ErrNotFound", err)
	}
	got, err := database.FindImage(db, private.ID, database.Viewer{UserID: alice.ID})
	if err != nil {
		t.Fatalf("FindImage(owner) error = %v", err)
	}
	if got.User.Username != "alice" {
		t.Errorf("User not preloaded: %+v", got.User)
	}
	if _, err := database.FindImage(db, 9999, database.Viewer{IsAdmin: true, UserID: alice.ID}); err != database.ErrNotFound {
		t.Errorf("FindImage(missing) error = %v", err)
	}
}

func TestViewer_CanEdit(t *testing.T) {
	img := &database.Image{UserID: 7}
	tests := []struct {
		viewer database.Viewer
		want   bool
	}{
		{database.Viewer{}, false},
		{database.Viewer{UserID: 7}, true},
		{database.Viewer{UserID: 8}, false},
		{database.Viewer{UserID: 8, IsAdmin: true}, true},
	}
	for _, tt := range tests {
		if got := tt.viewer.CanEdit(img); got != tt.want {
			t.Errorf("%+v.CanEdit() = %v, want %v", tt.viewer, got, tt.want)
		}
	}
}

func TestListTags(t *testing.T) {
	db := dbtest.Open(t)
	alice := dbtest.User(t, db, "alice", false)
	tags, _ := database.ResolveTags(db, []string{"猫", "狗", "花朵"}, 0)

	seedImage(t, db, alice, true, func(i *database.Image) { i.Tags = tags[:2] })
	seedImage(t, db, alice, false, func(i *database.Image) { i.Tags = tags[:1] })

	anon, err := database.ListTags(db, database.Viewer{})
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	counts := map[string]int64{}
	for _, tc := range anon {
		counts[tc.Name] = tc.Count
	}
	if counts["猫"] != 1 || counts["狗"] != 1 || counts["花朵"] != 0 || len(anon) != 3 {
		t.Errorf("anonymous counts = %v", counts)
	}

	owner, _ := database.ListTags(db, database.Viewer{UserID: alice.ID})
	if owner[0].Name != "猫" || owner[0].Count != 2 {
		t.Errorf("owner top tag = %+v", owner[0])
	}
}

func TestMaintainer_SnapshotAndRunOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gallery.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer database.Close(db)

	alice := dbtest.User(t, db, "alice", false)
	seedImage(t, db, alice, true, nil)

	m := &database.Maintainer{DB: db, Path: path, Threshold: 1 << 40}
	vacuumed, err := m.RunOnce(context.Background())
	if err != nil || vacuumed {
		t.Errorf("RunOnce() below threshold = %v, %v", vacuumed, err)
	}

	stats, err := database.ReadPageStats(context.Background(), db)
	if err != nil || stats.PageCount == 0 || stats.PageSize == 0 {
		t.Errorf("ReadPageStats() = %+v, %v", stats, err)
	}

	backup := filepath.Join(dir, "backup.db")
	if err := database.Snapshot(context.Background(), db, backup); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	copyDB, err := database.Open(backup)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer database.Close(copyDB)

	var users int64
	copyDB.Model(&database.User{}).Count(&users)
	if users != 1 {
		t.Errorf("snapshot has %d users, want 1", users)
	}
}
