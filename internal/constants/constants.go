package constants

// Application identity
const (
	AppName        = "assetbank"
	AppDisplayName = "AssetBank"
)

// Paths
const (
	ConfigDir    = ".config/assetbank"
	ConfigFile   = "config.yaml"
	DatabaseFile = "assetbank.db"
)

// Hashing
const (
	HashPrefix    = "blake3:"
	HashHexLength = 64
	HashChunkSize = 8 * 1024 * 1024 // streaming digest chunk
)

// Ingest and scanning
const (
	// MaxBindParams caps bind parameters per SQL statement; multi-row
	// inserts are chunked so rows_per_statement * columns stays under it.
	MaxBindParams = 800

	FastScanBatchSize = 500 // stub specs per ingest transaction
	EnrichBatchSize   = 100 // references per enrichment batch

	// MaxScanErrors bounds the supervisor's error list.
	MaxScanErrors = 100
)

// Uploads
const (
	// MaxFilenameLength caps sanitized client-supplied names.
	MaxFilenameLength = 255

	// FilenameReplacementChar stands in for stripped characters.
	FilenameReplacementChar = "_"

	// MaxExtensionLength caps the extension carried over from the client
	// filename onto the content-addressed destination name.
	MaxExtensionLength = 16

	DownloadChunkSize = 64 * 1024
)

// Tags
const (
	TagTypeUser   = "user"
	TagOriginAuto = "automatic"
	TagOriginUser = "manual"
	MissingTag    = "missing"
)

// Enrichment levels for asset references.
const (
	EnrichmentStub     = 0 // discovered, nothing extracted
	EnrichmentMetadata = 1 // tier-2 header metadata extracted
	EnrichmentHashed   = 2 // content hash computed
)

// Listing defaults
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 500
	MaxTagPageLimit  = 1000
)

// DefaultLogLevel used before config is loaded.
const DefaultLogLevel = "INFO"
