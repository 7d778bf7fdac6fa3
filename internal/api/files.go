package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/auth"
	"github.com/fruitsalade/bucketdrive/internal/drive"
	"github.com/fruitsalade/bucketdrive/internal/logging"
)

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	view := q.Get("view")
	if view == "" {
		view = q.Get("viewType")
	}

	var limit int
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.sendError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	result, err := s.drive.ListView(r.Context(), view, drive.ListOptions{
		Prefix:            q.Get("prefix"),
		Limit:             limit,
		ContinuationToken: q.Get("continuationToken"),
		Recursive:         queryBool(r, "recursive"),
	})
	if err != nil {
		s.sendDriveError(w, r, "list", err)
		return
	}
	sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.cfg.MaxUploadSize {
		s.sendError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		s.sendError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	result, err := s.drive.Upload(r.Context(), drive.UploadInput{
		Prefix:      r.FormValue("prefix"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Size:        header.Size,
	})
	if err != nil {
		s.sendDriveError(w, r, "upload", err)
		return
	}
	sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	var req UploadURLRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.drive.UploadURL(r.Context(), req.Key, req.ContentType)
	if err != nil {
		s.sendDriveError(w, r, "upload url", err)
		return
	}
	sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		key = r.URL.Query().Get("key")
	}
	url, err := s.drive.FileURL(r.Context(), key, auth.Caller(r.Context()), drive.URLRequest{
		Public:   queryBool(r, "isPublic"),
		Download: queryBool(r, "download"),
	})
	if err != nil {
		s.sendDriveError(w, r, "file url", err)
		return
	}
	sendJSON(w, http.StatusOK, URLResponse{URL: url})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.drive.Delete(r.Context(), key); err != nil {
		s.sendDriveError(w, r, "delete", err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"key": key, "deleted": true})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.drive.BulkDelete(r.Context(), req.Keys); err != nil {
		s.sendDriveError(w, r, "bulk delete", err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"deleted": len(req.Keys)})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key, err := s.drive.CreateFolder(r.Context(), req.FolderName)
	if err != nil {
		s.sendDriveError(w, r, "create folder", err)
		return
	}
	sendJSON(w, http.StatusCreated, KeyRequest{Key: key})
}

// lazyHeaderWriter defers the archive headers until the first byte so
// that errors found before streaming starts still get a JSON response.
type lazyHeaderWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (l *lazyHeaderWriter) Write(p []byte) (int, error) {
	if !l.started {
		l.started = true
		h := l.w.Header()
		h.Set("Content-Type", "application/zip")
		h.Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(l.filename, `"`, "")+`"`)
		l.w.WriteHeader(http.StatusOK)
	}
	return l.w.Write(p)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	prefix := r.PathValue("key")
	out := &lazyHeaderWriter{w: w, filename: drive.ArchiveName(prefix)}

	stats, err := s.drive.Archive(r.Context(), prefix, out)
	if err != nil {
		if !out.started {
			s.sendDriveError(w, r, "archive", err)
			return
		}
		logging.WithContext(r.Context()).Warn("archive aborted",
			logging.Prefix(prefix),
			zap.Int("entries", stats.Entries),
			logging.Err(err),
		)
		panic(http.ErrAbortHandler)
	}
}
