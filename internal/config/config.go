// Package config implements TOML configuration loading, validation, and
// path resolution for flow-go. It supports a four-layer override chain
// (defaults -> config file -> environment -> CLI flags). The same file serves
// both the relay server (serve) and the uploading client (send).
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Drive     DriveConfig     `toml:"drive"`
	Transfers TransfersConfig `toml:"transfers"`
	Limits    LimitsConfig    `toml:"limits"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Clients   ClientsConfig   `toml:"clients"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
}

// DriveConfig locates the shared drive and the marketing root folder that
// every destination path hangs off.
type DriveConfig struct {
	SharedDriveID   string `toml:"shared_drive_id"`
	RootFolderID    string `toml:"root_folder_id"`
	CredentialsFile string `toml:"credentials_file"`
	APIBaseURL      string `toml:"api_base_url"`
	UploadBaseURL   string `toml:"upload_base_url"`

	// CredentialsJSON is never read from the file; it is populated from the
	// environment so the key can be injected without touching disk.
	CredentialsJSON string `toml:"-" json:"-"`
}

// TransfersConfig controls the chunked upload path. chunk_size must be a
// multiple of 256 KiB per the Drive resumable upload protocol.
type TransfersConfig struct {
	ChunkSize      string `toml:"chunk_size"`
	MaxProbes      int    `toml:"max_probes"`
	ChunkTimeout   string `toml:"chunk_timeout"`
	BandwidthLimit string `toml:"bandwidth_limit"`
}

// LimitsConfig holds the admission boundary of the upload feature and the
// small/large routing threshold.
type LimitsConfig struct {
	MaxFileSize     string `toml:"max_file_size"`
	MaxBatchSize    string `toml:"max_batch_size"`
	DirectThreshold string `toml:"direct_threshold"`
}

// ServerConfig covers both sides of the relay: Listen for serve, URL for send.
type ServerConfig struct {
	Listen              string `toml:"listen"`
	URL                 string `toml:"url"`
	AdminPassword       string `toml:"admin_password" json:"-"`
	AllowedUploadPrefix string `toml:"allowed_upload_prefix"`
	MaxRequestBody      string `toml:"max_request_body"`
}

// NotifyConfig configures the chat notification sent after each batch.
// An empty token or group disables notifications without failing uploads.
type NotifyConfig struct {
	Endpoint string `toml:"endpoint"`
	Token    string `toml:"token" json:"-"`
	GroupID  string `toml:"group_id"`
	TimeZone string `toml:"time_zone"`
}

// ClientsConfig selects the client directory backend.
type ClientsConfig struct {
	Backend   string `toml:"backend"`
	DBPath    string `toml:"db_path"`
	RedisAddr string `toml:"redis_addr"`
	RedisKey  string `toml:"redis_key"`
}

// LoggingConfig controls log output level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Listen     *string // serve --listen
	ServerURL  *string // send --server
}
