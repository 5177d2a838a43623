package api

// API limits and constants.
const (
	// MaxUploadSize is the maximum allowed size for bookmark file uploads (32 MB).
	MaxUploadSize = 32 << 20
)

// Cache-Control header values.
const (
	CacheNoStore = "no-store"
)
