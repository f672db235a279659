package handlers

import (
	"net/http"
	"runtime"
	"time"

	"galleria/internal/appinfo"
	"galleria/internal/database"
	"galleria/internal/middleware"
	"galleria/pkg/utils"
)

type ExtendedStatsDTO struct {
	TotalCount        int64         `json:"total_count"`
	TotalSize         int64         `json:"total_size"`
	ThumbnailFailures int64         `json:"thumbnail_failures"`
	GeocodedImages    int64         `json:"geocoded_images"`
	TagSuggestions    int64         `json:"tag_suggestions"`
	Uptime            string        `json:"uptime"`
	UptimeSeconds     int64         `json:"uptime_seconds"`
	RamUsage          uint64        `json:"ram_usage"`
	NumGoroutines     int           `json:"num_goroutines"`
	CacheItems        int           `json:"cache_items"`
	CacheBytes        int64         `json:"cache_bytes"`
	Storage           string        `json:"storage"`
	Geocoding         bool          `json:"geocoding"`
	TagDevice         string        `json:"tag_device"`
	MaxUploadSize     string        `json:"max_upload_size"`
	RecentUploads     []ImageRecord `json:"recent_uploads"`
}

// GetStats returns server health, memory metrics, pipeline counters and the
// latest uploads the caller may see.
// GET /api/stats
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	counters := appinfo.Read()

	// Runtime Metrics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	recent, _, err := database.ListImages(s.DB.WithContext(r.Context()), middleware.ViewerFrom(r.Context()), database.ImageFilter{}, 1, 5)
	if err != nil {
		recent = nil
	}

	cacheItems, cacheBytes := s.Cache.Stats()
	uptime := time.Since(appinfo.StartTime)

	utils.WriteJSON(w, http.StatusOK, ExtendedStatsDTO{
		TotalCount:        counters.Images,
		TotalSize:         counters.StorageBytes,
		ThumbnailFailures: counters.ThumbnailFailures,
		GeocodedImages:    counters.GeocodedImages,
		TagSuggestions:    counters.TagSuggestions,
		Uptime:            uptime.Round(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		RamUsage:          m.Alloc,
		NumGoroutines:     runtime.NumGoroutine(),
		CacheItems:        cacheItems,
		CacheBytes:        cacheBytes,
		Storage:           s.Store.Name(),
		Geocoding:         s.Geocoder.Enabled(),
		TagDevice:         s.Tagger.Device(),
		MaxUploadSize:     s.Config.Image.MaxUploadSize,
		RecentUploads:     s.toRecords(recent),
	})
}
