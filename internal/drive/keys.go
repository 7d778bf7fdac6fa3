package drive

import "strings"

const (
	// TrashPrefix holds trashed copies at their original relative path.
	TrashPrefix = "trash/"
	// MetadataPrefix is the hidden namespace for drive bookkeeping.
	MetadataPrefix = ".metadata/"

	delimiter = "/"
)

func isFolder(key string) bool { return strings.HasSuffix(key, delimiter) }

func isHidden(key string) bool { return strings.HasPrefix(key, MetadataPrefix) }

func isTrashed(key string) bool { return strings.HasPrefix(key, TrashPrefix) }

// name returns the last non-empty path segment.
func name(key string) string {
	parts := strings.Split(key, delimiter)
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

func trashKeyOf(key string) string { return TrashPrefix + key }

// restoredKeyOf maps a trash key back to its original path. A trashed
// copy of the hidden namespace never maps back into it.
func restoredKeyOf(trashKey string) (string, error) {
	if !isTrashed(trashKey) {
		return "", invalidArgument("%q is not in trash", trashKey)
	}
	original := strings.TrimPrefix(trashKey, TrashPrefix)
	if isHidden(strings.TrimLeft(original, delimiter)) {
		return "", invalidArgument("%q is reserved", original)
	}
	return original, nil
}

// normalizeFolder makes key end in exactly one delimiter.
func normalizeFolder(key string) string {
	if key == "" || isFolder(key) {
		return key
	}
	return key + delimiter
}

// extension returns the lowercase text after the last dot of the final
// segment, or "" when there is none or the name starts with the dot.
func extension(key string) string {
	n := name(key)
	i := strings.LastIndex(n, ".")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(n[i+1:])
}
