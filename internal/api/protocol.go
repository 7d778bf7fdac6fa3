package api

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/fruitsalade/bucketdrive/internal/drive"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// KeyRequest names a single key.
type KeyRequest struct {
	Key string `json:"key"`
}

// CreateFolderRequest is the body of POST /api/v1/folders.
type CreateFolderRequest struct {
	FolderName string `json:"folderName"`
}

// UploadURLRequest is the body of POST /api/v1/files/upload-url.
type UploadURLRequest struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
}

// BulkDeleteRequest accepts either {"keys": [...]} or a bare JSON array.
type BulkDeleteRequest struct {
	Keys []string `json:"keys"`
}

func (b *BulkDeleteRequest) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &b.Keys)
	}
	type plain BulkDeleteRequest
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	b.Keys = p.Keys
	return nil
}

// ShareRequest updates the sharing settings of Key. Access is accepted
// as an alias for GeneralAccess.
type ShareRequest struct {
	Key           string             `json:"key"`
	GeneralAccess *string            `json:"generalAccess"`
	Access        *string            `json:"access"`
	GeneralRole   *string            `json:"generalRole"`
	SharedWith    []drive.SharedUser `json:"sharedWith"`
}

var errKeyRequired = errors.New("key is required")

func (r ShareRequest) update() drive.SharingUpdate {
	access := r.GeneralAccess
	if access == nil {
		access = r.Access
	}
	return drive.SharingUpdate{
		GeneralAccess: access,
		GeneralRole:   r.GeneralRole,
		SharedWith:    r.SharedWith,
	}
}

// LinkRequest creates a short link for Key. TTL is a Go duration string;
// empty means the link never expires.
type LinkRequest struct {
	Key string `json:"key"`
	TTL string `json:"ttl,omitempty"`
}

// URLResponse carries a single issued URL.
type URLResponse struct {
	URL string `json:"url"`
}

// TrashResponse reports the key a trash or restore landed on.
type TrashResponse struct {
	Key      string `json:"key"`
	TrashKey string `json:"trashKey,omitempty"`
}

// StarsResponse lists starred keys.
type StarsResponse struct {
	Keys []string `json:"keys"`
}

// SharingResponse pairs a key with its settings.
type SharingResponse struct {
	Key     string                `json:"key"`
	Sharing drive.SharingSettings `json:"sharing"`
}
