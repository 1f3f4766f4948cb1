package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig          = "FLOW_GO_CONFIG"
	EnvCredentials     = "FLOW_GO_CREDENTIALS"
	EnvCredentialsJSON = "GOOGLE_CREDENTIALS_JSON"
	EnvAdminPassword   = "FLOW_GO_ADMIN_PASSWORD"
	EnvNotifyToken     = "FLOW_GO_NOTIFY_TOKEN"
	EnvNotifyGroup     = "FLOW_GO_NOTIFY_GROUP"
	EnvServerURL       = "FLOW_GO_SERVER_URL"
	EnvRedisAddr       = "FLOW_GO_REDIS_ADDR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath      string // FLOW_GO_CONFIG: override config file path
	CredentialsFile string // FLOW_GO_CREDENTIALS: service account key file
	CredentialsJSON string // GOOGLE_CREDENTIALS_JSON: inline service account key
	AdminPassword   string // FLOW_GO_ADMIN_PASSWORD
	NotifyToken     string // FLOW_GO_NOTIFY_TOKEN
	NotifyGroup     string // FLOW_GO_NOTIFY_GROUP
	ServerURL       string // FLOW_GO_SERVER_URL
	RedisAddr       string // FLOW_GO_REDIS_ADDR
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:      os.Getenv(EnvConfig),
		CredentialsFile: os.Getenv(EnvCredentials),
		CredentialsJSON: os.Getenv(EnvCredentialsJSON),
		AdminPassword:   os.Getenv(EnvAdminPassword),
		NotifyToken:     os.Getenv(EnvNotifyToken),
		NotifyGroup:     os.Getenv(EnvNotifyGroup),
		ServerURL:       os.Getenv(EnvServerURL),
		RedisAddr:       os.Getenv(EnvRedisAddr),
	}
}

// applyEnv copies every non-empty override onto cfg.
func applyEnv(cfg *Config, env EnvOverrides) {
	setIf(&cfg.Drive.CredentialsFile, env.CredentialsFile)
	setIf(&cfg.Drive.CredentialsJSON, env.CredentialsJSON)
	setIf(&cfg.Server.AdminPassword, env.AdminPassword)
	setIf(&cfg.Notify.Token, env.NotifyToken)
	setIf(&cfg.Notify.GroupID, env.NotifyGroup)
	setIf(&cfg.Server.URL, env.ServerURL)
	setIf(&cfg.Clients.RedisAddr, env.RedisAddr)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
