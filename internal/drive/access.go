package drive

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/metrics"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

// CanRead resolves read access to key for caller ("" is anonymous).
// Public keys are readable by anyone. Otherwise the owner and grantees
// may read, and anonymous callers only when AllowAnonymous is set.
func (s *Service) CanRead(ctx context.Context, key, caller string) (bool, error) {
	st, err := s.FileSharing(ctx, key)
	if err != nil {
		return false, err
	}

	allowed := false
	switch {
	case st.GeneralAccess == AccessPublic:
		allowed = true
	case caller == "":
		allowed = s.opts.AllowAnonymous
	case strings.EqualFold(caller, s.opts.OwnerEmail):
		allowed = true
	default:
		allowed = st.sharesWith(caller)
	}

	metrics.RecordAccessCheck(allowed)
	if !allowed {
		logging.WithContext(ctx).Info("access denied",
			logging.Key(key), zap.String("caller", caller))
	}
	return allowed, nil
}

// URLRequest selects the kind of URL FileURL issues.
type URLRequest struct {
	Public   bool
	Download bool
}

// FileURL checks read access and returns a client-fetchable URL for key.
func (s *Service) FileURL(ctx context.Context, key, caller string, req URLRequest) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", invalidArgument("key is required")
	}
	if isHidden(key) {
		return "", notFound("%q", key)
	}

	ok, err := s.CanRead(ctx, key, caller)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrAccessDenied
	}

	opts := storage.URLOptions{Expiry: s.opts.URLExpiry, Public: req.Public}
	if req.Download {
		opts.DownloadAs = name(key)
	}
	u, err := s.signer.SignedURL(ctx, key, opts)
	if err != nil {
		return "", storeError("sign "+key, err)
	}
	return u, nil
}
