package config

type Config interface {
	EnvConfig
	OAuthConfig
	SyncConfig
	StoreConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Sync
	Store
}

func New() Config {
	return mainConfig{}
}
