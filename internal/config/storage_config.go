package config

type StorageDriver string

const (
	StorageMemory StorageDriver = "memory"
	StorageSQLite StorageDriver = "sqlite"
	StorageRedis  StorageDriver = "redis"
)

type StorageConfig interface {
	GetStorageDriver() StorageDriver
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisKeyPrefix() string
	GetAuditBufferSize() int
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetStorageDriver() StorageDriver {
	return StorageDriver(GetEnv("STORAGE_DRIVER", string(StorageMemory)))
}

func (Storage) GetSQLitePath() string {
	return GetEnv("SQLITE_PATH", "./data/identity.db")
}

func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Storage) GetRedisKeyPrefix() string {
	return GetEnv("REDIS_KEY_PREFIX", "idp:")
}

func (Storage) GetAuditBufferSize() int {
	return GetEnvInt("AUDIT_BUFFER_SIZE", 1000)
}
