package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"galleria/internal/ingest"
	"galleria/internal/media"
	"galleria/internal/middleware"
	"galleria/pkg/utils"
)

const (
	DefaultMaxUploadSize = 20 << 20 // 20 MB

	// multipartMemory is how much of a form is buffered in RAM before
	// spilling file parts to disk.
	multipartMemory = 8 << 20

	// formOverhead leaves room for boundaries and text fields on top of
	// the file itself.
	formOverhead = 1 << 20
)

var (
	errUploadTooLarge   = errors.New("upload too large")
	errUnsupportedMedia = errors.New("unsupported media")
)

func (s *Server) maxUploadSize() int64 {
	return utils.SizeToBytes(s.Config.Image.MaxUploadSize, DefaultMaxUploadSize)
}

// parseForm reads a multipart or urlencoded body capped at the upload limit.
// On failure the response is already written.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize()+formOverhead)

	err := r.ParseMultipartForm(multipartMemory)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		utils.WriteError(w, http.StatusRequestEntityTooLarge, utils.ErrRequestBodyTooLarge, "File exceeds size limit.")
		return false
	}
	utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Malformed form body.")
	return false
}

// uploadedFile returns the "image" file part (the legacy "img_url" field is
// accepted too), or nil when the form carries none.
func (s *Server) uploadedFile(r *http.Request) (*media.Blob, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	for _, field := range []string{"image", "img_url"} {
		parts := r.MultipartForm.File[field]
		if len(parts) == 0 {
			continue
		}
		header := parts[0]
		if header.Size > s.maxUploadSize() {
			return nil, errUploadTooLarge
		}

		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}

		head := data
		if len(head) > 512 {
			head = head[:512]
		}
		if !utils.IsImageUpload(head, header.Filename) {
			return nil, errUnsupportedMedia
		}
		return &media.Blob{Name: filepath.Base(header.Filename), Data: data}, nil
	}
	return nil, nil
}

func writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUploadTooLarge):
		utils.WriteError(w, http.StatusRequestEntityTooLarge, utils.ErrRequestBodyTooLarge, "File exceeds size limit.")
	case errors.Is(err, errUnsupportedMedia):
		utils.WriteError(w, http.StatusUnsupportedMediaType, utils.ErrRequestUnSupportedMedia, "Unsupported file type.")
	default:
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Could not read the uploaded file.")
	}
}

// UploadHandler ingests a new photo from multipart/form-data: "image" plus
// optional "tags" (comma list or repeated), "category", "description" and
// "is_public" (default true).
// POST /api/images
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	v := middleware.ViewerFrom(r.Context())

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

	form := r.PostForm
	img, err := s.Images.Create(r.Context(), ingest.CreateInput{
		Owner:       v.UserID,
		Blob:        *blob,
		Tags:        utils.SplitList(form["tags"]),
		Category:    form.Get("category"),
		Description: form.Get("description"),
		IsPublic:    utils.ParseBool(form.Get("is_public"), true),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, s.toRecord(img))
}

// EditHandler applies a partial update. Only fields present in the form
// change; an empty "tags" clears the set and an empty "category" removes it.
// PATCH /api/images/{id}
func (s *Server) EditHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
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

	form := r.PostForm
	in := ingest.EditInput{Blob: blob}
	if values, ok := form["tags"]; ok {
		tags := utils.SplitList(values)
		in.Tags = &tags
	}
	if _, ok := form["category"]; ok {
		category := form.Get("category")
		in.Category = &category
	}
	if _, ok := form["description"]; ok {
		description := form.Get("description")
		in.Description = &description
	}
	if _, ok := form["is_public"]; ok {
		public := utils.ParseBool(form.Get("is_public"), true)
		in.IsPublic = &public
	}

	img, err := s.Images.Update(r.Context(), id, middleware.ViewerFrom(r.Context()), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, s.toRecord(img))
}

// DeleteHandler removes a photo and its stored files.
// DELETE /api/images/{id}
func (s *Server) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Images.Delete(r.Context(), id, middleware.ViewerFrom(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
