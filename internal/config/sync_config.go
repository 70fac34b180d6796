package config

import "time"

const (
	minWorkers = 1
	maxWorkers = 8
)

type SyncConfig interface {
	GetAPIBaseURL() string
	GetRealmID() string
	GetMinorVersion() string
	GetRequestTimeout() time.Duration
	GetWorkers() int
	GetDefaultIncomeAccount() string
}

type Sync struct{}

var _ SyncConfig = Sync{}

func (Sync) GetAPIBaseURL() string {
	return GetEnv("SYNC_API_BASE_URL", "https://quickbooks.api.intuit.com")
}

func (Sync) GetRealmID() string {
	return GetEnv("SYNC_REALM_ID", "")
}

func (Sync) GetMinorVersion() string {
	return GetEnv("SYNC_MINOR_VERSION", "65")
}

// GetRequestTimeout bounds each individual remote call, not a whole batch.
func (Sync) GetRequestTimeout() time.Duration {
	return GetEnvDuration("SYNC_REQUEST_TIMEOUT", 30*time.Second)
}

func (Sync) GetWorkers() int {
	return ClampWorkers(GetEnvInt("SYNC_WORKERS", 4))
}

func (Sync) GetDefaultIncomeAccount() string {
	return GetEnv("SYNC_DEFAULT_INCOME_ACCOUNT", "Sales of Product Income")
}

func ClampWorkers(n int) int {
	if n < minWorkers {
		return minWorkers
	}
	if n > maxWorkers {
		return maxWorkers
	}
	return n
}
