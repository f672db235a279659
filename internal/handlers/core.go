package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"galleria/internal/database"
	"galleria/internal/ingest"
	"galleria/internal/storage"
	"galleria/pkg/logger"
	"galleria/pkg/utils"
)

// ImageRecord is the API representation of a stored photo.
type ImageRecord struct {
	ID           uint       `json:"id"`
	User         uint       `json:"user"`
	UploaderName string     `json:"uploader_name"`
	Category     *uint      `json:"category"`
	CategoryName *string    `json:"category_name"`
	Tags         []string   `json:"tags"`
	ImgURL       string     `json:"img_url"`
	ThumbURL     *string    `json:"thumb_url"`
	FileSize     int        `json:"file_size"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	CameraModel  *string    `json:"camera_model"`
	ShootTime    *time.Time `json:"shoot_time"`
	Location     *string    `json:"location"`
	ISO          *int       `json:"iso"`
	FStop        *float64   `json:"f_stop"`
	ExposureTime *string    `json:"exposure_time"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	Description  string     `json:"description"`
	IsPublic     bool       `json:"is_public"`
	UploadTime   time.Time  `json:"upload_time"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type PaginatedResponse struct {
	Items      []ImageRecord `json:"items"`
	TotalItems int64         `json:"total_items"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"total_pages"`
}

func (s *Server) assetURL(key string) string {
	return storage.URL(s.Config.GetBaseUrl(), s.publicPath(), key)
}

func (s *Server) toRecord(img *database.Image) ImageRecord {
	rec := ImageRecord{
		ID:           img.ID,
		User:         img.UserID,
		UploaderName: img.User.Username,
		Category:     img.CategoryID,
		Tags:         make([]string, 0, len(img.Tags)),
		ImgURL:       s.assetURL(img.OriginalKey),
		FileSize:     img.FileSize,
		Width:        img.Width,
		Height:       img.Height,
		CameraModel:  img.CameraModel,
		ShootTime:    img.ShootTime,
		Location:     img.Location,
		ISO:          img.ISO,
		FStop:        img.FStop,
		ExposureTime: img.ExposureTime,
		Latitude:     img.Latitude,
		Longitude:    img.Longitude,
		Description:  img.Description,
		IsPublic:     img.IsPublic,
		UploadTime:   img.UploadTime,
		UpdatedAt:    img.UpdatedAt,
	}
	if img.Category != nil {
		rec.CategoryName = &img.Category.Name
	}
	if img.ThumbKey != "" {
		thumb := s.assetURL(img.ThumbKey)
		rec.ThumbURL = &thumb
	}
	for _, t := range img.Tags {
		rec.Tags = append(rec.Tags, t.Name)
	}
	return rec
}

func (s *Server) toRecords(images []database.Image) []ImageRecord {
	out := make([]ImageRecord, 0, len(images))
	for i := range images {
		out = append(out, s.toRecord(&images[i]))
	}
	return out
}

// writeServiceError maps service and repository errors to API errors.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
	case errors.Is(err, database.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, utils.ErrRequestForbidden, "You do not have permission to perform this action.")
	case errors.Is(err, database.ErrInvalidName):
		utils.WriteError(w, http.StatusBadRequest, utils.ErrValidationInvalidFormat, err.Error())
	case errors.Is(err, database.ErrUnknownCategory):
		utils.WriteValidationError(w, map[string]string{"category": "Invalid category - object does not exist."})
	case errors.Is(err, ingest.ErrEmptyUpload):
		utils.WriteValidationError(w, map[string]string{"image": "The submitted file is empty."})
	case errors.Is(err, context.DeadlineExceeded):
		utils.WriteError(w, http.StatusGatewayTimeout, utils.ErrServerTimeout, "The operation timed out.")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
	default:
		logger.LogError("Request failed: %v", err)
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Something went wrong on our side.")
	}
}

// pathID parses the {id} wildcard. Malformed ids are answered with 404.
func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
		return 0, false
	}
	return uint(id), true
}
