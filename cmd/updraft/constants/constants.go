package constants

const (
	AppName                = "updraft"
	DefaultConfPath        = "./src-tauri/tauri.conf.json"
	DefaultReleaseDir      = "./src-tauri/target/release/bundle"
	DefaultProfilePath     = "updraft.yaml"
	ProfileVersion         = "1"
	ManifestFilename       = "manifest.json"
	ManifestKeyFormat      = "%s/" + ManifestFilename
	ArtifactKeyFormat      = "%s/%s/%s/%s"
	SignatureFileExtension = "sig"
	ArmoredSigExtension    = "asc"
	ChecksumFileSuffix     = "checksums.txt"
	ChannelPlaceholder     = "{channel}"
	DefaultChannel         = "main"
	NotesFormat            = "New %s release: %s"
	EnvVarPrefix           = "UPDRAFT"
	MaxChannelLength       = 63
	SpacesEndpointFormat   = "%s.digitaloceanspaces.com"
	PublicURLFormat        = "https://%s.%s"
)

// Environment variable names, kept compatible with the deployment
// scripts that predate this tool.
const (
	EnvAccessKey = "S3_ACCESS_KEY"
	EnvSecretKey = "S3_SECRET_KEY"
	EnvBucket    = "S3_BUCKET"
	EnvRegion    = "S3_REGION"
	EnvEndpoint  = "S3_ENDPOINT"
	EnvPublicURL = "S3_PUBLIC_URL"
	EnvInsecure  = "S3_INSECURE"

	EnvSigningKey        = "UPDRAFT_SIGNING_KEY"
	EnvSigningPassphrase = "UPDRAFT_SIGNING_PASSPHRASE"
)

const (
	StoreAttempts     = 5
	ReconcileAttempts = 10
)

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitPartial = 2
)
