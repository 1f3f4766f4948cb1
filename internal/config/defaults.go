package config

// Default values for configuration options. These represent "layer 0" of the
// override chain.
const (
	defaultAPIBaseURL          = "https://www.googleapis.com/drive/v3"
	defaultUploadBaseURL       = "https://www.googleapis.com/upload/drive/v3"
	defaultChunkSize           = "4MiB"
	defaultMaxProbes           = 10
	defaultChunkTimeout        = "2m"
	defaultBandwidthLimit      = "0"
	defaultMaxFileSize         = "50MiB"
	defaultMaxBatchSize        = "200MiB"
	defaultDirectThreshold     = "4MiB"
	defaultListen              = "127.0.0.1:8080"
	defaultServerURL           = "http://127.0.0.1:8080"
	defaultAllowedUploadPrefix = "https://www.googleapis.com/upload/"
	defaultMaxRequestBody      = "64MiB"
	defaultNotifyEndpoint      = "https://francaassessoria.uazapi.com/send/text"
	defaultNotifyTimeZone      = "America/Sao_Paulo"
	defaultClientsBackend      = ClientsBackendSQLite
	defaultRedisKey            = "clientes"
	defaultLogLevel            = "info"
	defaultLogFormat           = "auto"
	defaultConnectTimeout      = "10s"
	defaultDataTimeout         = "60s"
	defaultUserAgent           = "flow-go/0.1"
)

// Client directory backends.
const (
	ClientsBackendSQLite = "sqlite"
	ClientsBackendRedis  = "redis"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Drive: DriveConfig{
			APIBaseURL:    defaultAPIBaseURL,
			UploadBaseURL: defaultUploadBaseURL,
		},
		Transfers: TransfersConfig{
			ChunkSize:      defaultChunkSize,
			MaxProbes:      defaultMaxProbes,
			ChunkTimeout:   defaultChunkTimeout,
			BandwidthLimit: defaultBandwidthLimit,
		},
		Limits: LimitsConfig{
			MaxFileSize:     defaultMaxFileSize,
			MaxBatchSize:    defaultMaxBatchSize,
			DirectThreshold: defaultDirectThreshold,
		},
		Server: ServerConfig{
			Listen:              defaultListen,
			URL:                 defaultServerURL,
			AllowedUploadPrefix: defaultAllowedUploadPrefix,
			MaxRequestBody:      defaultMaxRequestBody,
		},
		Notify: NotifyConfig{
			Endpoint: defaultNotifyEndpoint,
			TimeZone: defaultNotifyTimeZone,
		},
		Clients: ClientsConfig{
			Backend:  defaultClientsBackend,
			RedisKey: defaultRedisKey,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
			UserAgent:      defaultUserAgent,
		},
	}
}
