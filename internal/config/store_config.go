package config

type StoreConfig interface {
	GetDBPath() string
	GetCredentialKey() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetDBPath() string {
	return GetEnv("SYNC_DB_PATH", "./data/sync.db")
}

// GetCredentialKey is the passphrase used to seal tokens at rest. Empty disables sealing.
func (Store) GetCredentialKey() string {
	return GetEnv("SYNC_CREDENTIAL_KEY", "")
}
