package constants

// API Error Codes
const (
	ErrCodeInvalidHash        = "INVALID_HASH"
	ErrCodeInvalidQuery       = "INVALID_QUERY"
	ErrCodeInvalidBody        = "INVALID_BODY"
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeAssetNotFound      = "ASSET_NOT_FOUND"
	ErrCodeFileNotFound       = "FILE_NOT_FOUND"
	ErrCodeHashMismatch       = "HASH_MISMATCH"
	ErrCodeDependencyMissing  = "DEPENDENCY_MISSING"
	ErrCodeBackendUnsupported = "BACKEND_UNSUPPORTED"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeScanRunning        = "SCAN_RUNNING"
	ErrCodeInternalError      = "INTERNAL"
)
