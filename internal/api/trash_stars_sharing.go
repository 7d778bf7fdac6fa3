package api

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/logging"
)

// ─── Trash ──────────────────────────────────────────────────────────────────

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	trashKey, err := s.drive.MoveToTrash(r.Context(), req.Key)
	if err != nil {
		s.sendDriveError(w, r, "trash", err)
		return
	}
	sendJSON(w, http.StatusOK, TrashResponse{Key: req.Key, TrashKey: trashKey})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key, err := s.drive.Restore(r.Context(), req.Key)
	if err != nil {
		s.sendDriveError(w, r, "restore", err)
		return
	}
	sendJSON(w, http.StatusOK, TrashResponse{Key: key})
}

// ─── Stars ──────────────────────────────────────────────────────────────────

func (s *Server) handleStars(w http.ResponseWriter, r *http.Request) {
	keys, err := s.drive.Stars(r.Context())
	if err != nil {
		s.sendDriveError(w, r, "stars", err)
		return
	}
	sendJSON(w, http.StatusOK, StarsResponse{Keys: nonNil(keys)})
}

func (s *Server) handleToggleStar(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	keys, err := s.drive.ToggleStar(r.Context(), req.Key)
	if err != nil {
		s.sendDriveError(w, r, "toggle star", err)
		return
	}
	sendJSON(w, http.StatusOK, StarsResponse{Keys: nonNil(keys)})
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}

// ─── Sharing ────────────────────────────────────────────────────────────────

func (s *Server) handleGetSharing(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		key = r.URL.Query().Get("key")
	}
	settings, err := s.drive.FileSharing(r.Context(), key)
	if err != nil {
		s.sendDriveError(w, r, "get sharing", err)
		return
	}
	sendJSON(w, http.StatusOK, SharingResponse{Key: key, Sharing: settings})
}

func (s *Server) handleUpdateSharing(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	settings, err := s.drive.UpdateSharing(r.Context(), req.Key, req.update())
	if err != nil {
		s.sendDriveError(w, r, "update sharing", err)
		return
	}
	sendJSON(w, http.StatusOK, SharingResponse{Key: req.Key, Sharing: settings})
}

// ─── Short links ────────────────────────────────────────────────────────────

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		s.sendError(w, http.StatusBadRequest, errKeyRequired.Error())
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			s.sendError(w, http.StatusBadRequest, "invalid ttl")
			return
		}
		ttl = d
	}

	link, err := s.drive.CreateShortLink(r.Context(), req.Key, ttl)
	if err != nil {
		s.sendDriveError(w, r, "create link", err)
		return
	}
	logging.WithContext(r.Context()).Info("short link issued",
		logging.Key(link.Key),
		zap.String("id", link.ID),
	)
	sendJSON(w, http.StatusOK, link)
}

func (s *Server) handleResolveLink(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.drive.ResolveShortLink(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendDriveError(w, r, "resolve link", err)
		return
	}
	sendJSON(w, http.StatusOK, resolved)
}

// ─── Usage ──────────────────────────────────────────────────────────────────

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.drive.StorageUsage(r.Context())
	if err != nil {
		s.sendDriveError(w, r, "storage usage", err)
		return
	}
	sendJSON(w, http.StatusOK, usage)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.drive.Dashboard(r.Context())
	if err != nil {
		s.sendDriveError(w, r, "dashboard", err)
		return
	}
	sendJSON(w, http.StatusOK, dash)
}
