// Package handlers exposes the gallery over HTTP: authentication, image
// upload and editing, listing, search, tag suggestion, asset serving and
// administration.
package handlers

import (
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"galleria/internal/auth"
	"galleria/internal/config"
	"galleria/internal/geocode"
	"galleria/internal/ingest"
	"galleria/internal/middleware"
	"galleria/internal/search"
	"galleria/internal/storage"
	"galleria/internal/tagger"
	"galleria/pkg/cache"
)

// Server carries the shared services every handler needs. The tagger and
// geocoder may be nil when unavailable.
type Server struct {
	Config   *config.Config
	DB       *gorm.DB
	Store    storage.Store
	Images   *ingest.Service
	Users    *auth.Service
	Search   *search.Searcher
	Tagger   *tagger.Suggester
	Geocoder *geocode.Geocoder
	Cache    *cache.MemoryCache

	Authn        *middleware.Authenticator
	LoginLimiter *middleware.RateLimiter

	// SingleFlight group to prevent cache stampedes on assets
	requestGroup singleflight.Group

	backupMutex sync.Mutex
}

func (s *Server) publicPath() string {
	p := "/" + strings.Trim(s.Config.Storage.PublicPath, "/")
	if p == "/" {
		return "/media"
	}
	return p
}

// Routes registers every endpoint on a new ServeMux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	a := s.Authn

	// Auth
	mux.HandleFunc("POST /api/auth/register", s.RegisterHandler)
	mux.Handle("POST /api/auth/login", s.LoginLimiter.Middleware(http.HandlerFunc(s.LoginHandler)))
	mux.HandleFunc("GET /api/auth/me", a.Required(s.MeHandler))

	// Images
	mux.HandleFunc("GET /api/images", a.Optional(s.ListImages))
	mux.HandleFunc("POST /api/images", a.Required(s.UploadHandler))
	mux.HandleFunc("GET /api/images/search", a.Optional(s.SearchImages))
	mux.HandleFunc("POST /api/images/analyze", a.Required(s.AnalyzeHandler))
	mux.HandleFunc("GET /api/images/{id}", a.Optional(s.GetImage))
	mux.HandleFunc("PATCH /api/images/{id}", a.Required(s.EditHandler))
	mux.HandleFunc("DELETE /api/images/{id}", a.Required(s.DeleteHandler))

	// Taxonomy
	mux.HandleFunc("GET /api/categories", s.ListCategories)
	mux.HandleFunc("POST /api/categories", a.Required(s.CreateCategory))
	mux.HandleFunc("GET /api/tags", a.Optional(s.ListTags))

	// Stored assets
	mux.HandleFunc("GET "+s.publicPath()+"/{key...}", s.ServeMedia)

	// Admin
	mux.HandleFunc("GET /api/stats", a.Optional(s.GetStats))
	mux.HandleFunc("GET /api/admin/backup", a.Admin(s.BackupHandler))

	return mux
}
