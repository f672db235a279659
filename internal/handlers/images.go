package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"galleria/internal/appinfo"
	"galleria/internal/database"
	"galleria/internal/middleware"
	"galleria/pkg/utils"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// parseDate accepts RFC 3339, a naive date-time or a bare date. A bare end
// date covers the whole day.
func parseDate(value string, endOfDay bool) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" && endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, true
	}
	return nil, false
}

// ListImages returns visible images, newest upload first.
// GET /api/images?q=&category=&start_date=&end_date=&only_my=&page=&limit=
func (s *Server) ListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := middleware.ViewerFrom(r.Context())

	filter := database.ImageFilter{
		Query:    q.Get("q"),
		OnlyMine: utils.ParseBool(q.Get("only_my"), false),
	}
	fields := map[string]string{}

	if c := strings.TrimSpace(q.Get("category")); c != "" {
		id, err := strconv.ParseUint(c, 10, 64)
		if err != nil {
			fields["category"] = "A valid integer is required."
		} else {
			cid := uint(id)
			filter.CategoryID = &cid
		}
	}

	var ok bool
	if filter.Start, ok = parseDate(q.Get("start_date"), false); !ok {
		fields["start_date"] = "Use YYYY-MM-DD or an RFC 3339 timestamp."
	}
	if filter.End, ok = parseDate(q.Get("end_date"), true); !ok {
		fields["end_date"] = "Use YYYY-MM-DD or an RFC 3339 timestamp."
	}
	if len(fields) > 0 {
		utils.WriteValidationError(w, fields)
		return
	}

	if filter.OnlyMine && !v.Authenticated() {
		utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthRequired, "Log in to list your own images.")
		return
	}

	page := utils.ParseInt(q.Get("page"), 1, 1, 1<<20)
	limit := utils.ParseInt(q.Get("limit"), DefaultPageSize, 1, MaxPageSize)

	images, total, err := database.ListImages(s.DB.WithContext(r.Context()), v, filter, page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, PaginatedResponse{
		Items:      s.toRecords(images),
		TotalItems: total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	})
}

// GetImage returns one visible image.
// GET /api/images/{id}
func (s *Server) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	img, err := database.FindImage(s.DB.WithContext(r.Context()), id, middleware.ViewerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, s.toRecord(img))
}

type SearchResult struct {
	ID          uint    `json:"id"`
	URL         string  `json:"url"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type SearchResponse struct {
	Keywords []string       `json:"keywords"`
	Results  []SearchResult `json:"results"`
}

// SearchImages answers a free-text query.
// GET /api/images/search?query=
func (s *Server) SearchImages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		query = r.URL.Query().Get("q")
	}

	keywords, hits, err := s.Search.Search(r.Context(), middleware.ViewerFrom(r.Context()), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{
			ID:          h.Image.ID,
			URL:         s.assetURL(h.Image.OriginalKey),
			Description: h.Image.Description,
			Score:       h.Score,
		})
	}
	utils.WriteJSON(w, http.StatusOK, SearchResponse{Keywords: keywords, Results: results})
}

// AnalyzeHandler suggests tags for an uploaded image without storing it.
// POST /api/images/analyze
func (s *Server) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if !s.Tagger.Available() {
		utils.WriteError(w, http.StatusServiceUnavailable, utils.ErrServerUnavailable, "Tag suggestion is not available on this server.")
		return
	}

	if !s.parseForm(w, r) {
		return
	}
	blob, err := s.uploadedFile(r)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	if blob == nil {
		utils.WriteValidationError(w, map[string]string{"image": "No file was submitted."})
		return
	}

	normalized := s.Images.Pipeline.Normalizer.Normalize(*blob)
	tags := s.Tagger.SuggestBytes(r.Context(), normalized.Data)
	appinfo.TagSuggestions.Add(1)

	utils.WriteJSON(w, http.StatusOK, map[string][]string{"suggested_tags": tags})
}

// ListCategories returns all categories by name.
// GET /api/categories
func (s *Server) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := database.ListCategories(s.DB.WithContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, cats)
}

type CategoryRequest struct {
	Name string `json:"name"`
}

// CreateCategory adds a category.
// POST /api/categories
func (s *Server) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, 2048, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		utils.WriteValidationError(w, map[string]string{"name": "This field may not be blank."})
		return
	case utf8.RuneCountInString(name) > 50:
		utils.WriteValidationError(w, map[string]string{"name": "Ensure this field has no more than 50 characters."})
		return
	}

	db := s.DB.WithContext(r.Context())
	var n int64
	if err := db.Model(&database.Category{}).Where("name = ?", name).Count(&n).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	if n > 0 {
		utils.WriteValidationError(w, map[string]string{"name": "category with this name already exists."})
		return
	}

	cat := database.Category{Name: name}
	if err := db.Create(&cat).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, cat)
}

// ListTags returns tags with the number of visible images using each.
// GET /api/tags
func (s *Server) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := database.ListTags(s.DB.WithContext(r.Context()), middleware.ViewerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, tags)
}
