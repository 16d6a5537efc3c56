package localstore

import "strings"

// Keys of the cached collections
const (
	KeyMessages = "messages"
	KeyPhotos   = "album_photos"
	KeyPlanner  = "planner_activities"

	commentsPrefix = "comments:"
	pendingPrefix  = "pending:"
	blobPrefix     = "blob:"
)

// CommentsKey returns the key of a photo's comment thread
func CommentsKey(photoID string) string {
	return commentsPrefix + photoID
}

// CommentsPrefix is the prefix shared by every comment thread key
func CommentsPrefix() string {
	return commentsPrefix
}

// PhotoIDFromCommentsKey extracts the photo id from a comment thread key
func PhotoIDFromCommentsKey(key string) (string, bool) {
	if !strings.HasPrefix(key, commentsPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, commentsPrefix), true
}

// PendingKey returns the key of the pending ledger kept for a cache key
func PendingKey(key string) string {
	return pendingPrefix + key
}

// BlobKey returns the key holding a photo's bytes while it has no remote URL
func BlobKey(photoID string) string {
	return blobPrefix + photoID
}
