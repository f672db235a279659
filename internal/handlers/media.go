package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"galleria/internal/storage"
	"galleria/pkg/utils"
)

const mediaFetchTimeout = 30 * time.Second

func mediaCacheKey(key string) string { return "media:" + key }

// EvictMedia drops a stored object from the asset cache.
func (s *Server) EvictMedia(key string) {
	s.Cache.Delete(mediaCacheKey(key))
}

// serveWithETag handles HTTP caching headers (ETag, Cache-Control).
// Returns 304 Not Modified if client's cache is valid.
func serveWithETag(w http.ResponseWriter, r *http.Request, data []byte, mimeType string) {
	hash := sha256.Sum256(data)
	etag := `"` + hex.EncodeToString(hash[:16]) + `"`

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if match := r.Header.Get("If-None-Match"); match != "" {
		for _, candidate := range strings.Split(match, ",") {
			candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
			if candidate == etag || candidate == "*" {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}

	w.Write(data)
}

// ServeMedia streams an original or thumbnail from asset storage. Concurrent
// misses for the same key share one storage read.
// GET /media/{key...}
func (s *Server) ServeMedia(w http.ResponseWriter, r *http.Request) {
	key, err := storage.CleanKey(r.PathValue("key"))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "File not found.")
		return
	}

	cacheKey := mediaCacheKey(key)
	data, err, _ := s.requestGroup.Do(cacheKey, func() (interface{}, error) {
		// Double-check cache inside the flight
		if cached, ok := s.Cache.Get(cacheKey); ok {
			return cached, nil
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), mediaFetchTimeout)
		defer cancel()

		data, err := s.Store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		s.Cache.Set(cacheKey, data)
		return data, nil
	})

	if errors.Is(err, storage.ErrNotExist) || errors.Is(err, storage.ErrInvalidKey) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "File not found.")
		return
	}
	if err != nil {
		utils.WriteError(w, http.StatusBadGateway, utils.ErrStorageFailed, "Could not read the file from storage.")
		return
	}

	serveWithETag(w, r, data.([]byte), storage.ContentType(key))
}
