package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/AviroopPaul/atlas-ai/internal/objectstore"
	"github.com/AviroopPaul/atlas-ai/internal/storage"
)

// multipartOverhead pads the body limit above the file size cap to leave
// room for multipart boundaries and headers.
const multipartOverhead = 1 << 20

type fileResponse struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
	UploadedAt  string `json:"uploaded_at"`
	Processed   bool   `json:"processed"`
	DownloadURL string `json:"download_url,omitempty"`
}

func toFileResponse(rec storage.FileRecord, downloadURL string) fileResponse {
	return fileResponse{
		ID:          rec.ID,
		Filename:    rec.OriginalName,
		FileType:    rec.FileType,
		FileSize:    rec.FileSize,
		UploadedAt:  rec.UploadedAt.Format(time.RFC3339),
		Processed:   rec.Processed,
		DownloadURL: downloadURL,
	}
}

func handleUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)
		maxBytes := deps.Upload.MaxFileSizeBytes()
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
			return
		}
		defer file.Close()

		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
		if !slices.Contains(deps.Upload.AllowedExtensionsList(), ext) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file type %q is not supported", ext)
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading file: %v", err)
			return
		}
		if len(data) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is empty")
			return
		}
		if int64(len(data)) > maxBytes {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "file exceeds the %d byte limit", maxBytes)
			return
		}

		uploadID := uuid.New().String()
		storageKey := fmt.Sprintf("%d/%s_%s", user.ID, uploadID, header.Filename)
		collectionID := "file_" + uploadID

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		obj, err := deps.Objects.Put(r.Context(), storageKey, data, contentType)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "storing file: %v", err)
			return
		}

		if err := deps.Vectors.EnsureCollection(r.Context(), collectionID); err != nil {
			rollbackUpload(r, deps, obj, storageKey, "")
			httpError(w, http.StatusBadGateway, "api_error", "preparing index: %v", err)
			return
		}

		rec, err := deps.Store.CreateFile(storage.FileRecord{
			UserID:       user.ID,
			StorageKey:   storageKey,
			OriginalName: header.Filename,
			FileType:     ext,
			FileSize:     int64(len(data)),
			StorageURL:   obj.URL,
			StorageID:    obj.StorageID,
			CollectionID: collectionID,
		})
		if err != nil {
			rollbackUpload(r, deps, obj, storageKey, collectionID)
			httpError(w, http.StatusInternalServerError, "api_error", "recording file: %v", err)
			return
		}

		deps.Queue.Enqueue(rec.ID)

		w.WriteHeader(http.StatusCreated)
		writeJSON(w, toFileResponse(rec, obj.URL))
	}
}

// rollbackUpload undoes the partial upload: the stored blob and, when
// non-empty, the vector collection. Failures are logged, not surfaced; the
// client already gets the original error.
func rollbackUpload(r *http.Request, deps AppDeps, obj *objectstore.Object, storageKey, collectionID string) {
	if err := deps.Objects.Delete(r.Context(), obj.StorageID, storageKey); err != nil {
		slog.Error("upload rollback: deleting blob failed", "key", storageKey, "error", err)
	}
	if collectionID != "" {
		if err := deps.Vectors.DeleteCollection(r.Context(), collectionID); err != nil {
			slog.Error("upload rollback: deleting collection failed", "collection", collectionID, "error", err)
		}
	}
}

func handleListFiles(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)

		files, err := deps.Store.ListFiles(user.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing files: %v", err)
			return
		}

		out := make([]fileResponse, len(files))
		for i, rec := range files {
			out[i] = toFileResponse(rec, rec.StorageURL)
		}
		writeJSON(w, out)
	}
}

func handleGetFile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)
		id, err := parseID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid file id")
			return
		}

		rec, err := deps.Store.GetFile(id, user.ID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading file: %v", err)
			return
		}

		// Mint a fresh download URL; fall back to the one stored at upload.
		downloadURL, err := deps.Objects.AuthorizedURL(r.Context(), rec.StorageKey, objectstore.DefaultURLTTL)
		if err != nil {
			slog.Warn("download url signing failed, using stored url", "file_id", rec.ID, "error", err)
			downloadURL = rec.StorageURL
		}

		writeJSON(w, toFileResponse(rec, downloadURL))
	}
}

func handleDeleteFile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)
		id, err := parseID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid file id")
			return
		}

		rec, err := deps.Store.GetFile(id, user.ID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading file: %v", err)
			return
		}

		// The record goes last so a failed external cleanup can be retried.
		if err := deps.Objects.Delete(r.Context(), rec.StorageID, rec.StorageKey); err != nil {
			slog.Warn("deleting blob failed", "file_id", rec.ID, "error", err)
		}
		if err := deps.Vectors.DeleteCollection(r.Context(), rec.CollectionID); err != nil {
			slog.Warn("deleting collection failed", "file_id", rec.ID, "error", err)
		}

		if err := deps.Store.DeleteFile(id, user.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting file: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
