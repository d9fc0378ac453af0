package config

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// SessionStoreDefault keeps sessions in the same store as users.
	SessionStoreDefault = "default"
	SessionStoreRedis   = "redis"
)

type StorageConfig interface {
	GetStorageDriver() string
	GetSQLitePath() string
	GetPostgresDSN() string
	GetSessionStore() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type StorageSettings struct {
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	SessionStore  string `yaml:"session_store"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type Storage struct {
	settings StorageSettings
}

var _ StorageConfig = Storage{}

func defaultStorageSettings() StorageSettings {
	return StorageSettings{
		Driver:       DriverSQLite,
		SQLitePath:   "./data/care-auth.db",
		SessionStore: SessionStoreDefault,
	}
}

func (s Storage) GetStorageDriver() string {
	return GetEnv("STORAGE_DRIVER", s.settings.Driver)
}

func (s Storage) GetSQLitePath() string {
	return GetEnv("SQLITE_PATH", s.settings.SQLitePath)
}

func (s Storage) GetPostgresDSN() string {
	return GetEnv("DATABASE_URL", s.settings.PostgresDSN)
}

func (s Storage) GetSessionStore() string {
	return GetEnv("SESSION_STORE", s.settings.SessionStore)
}

func (s Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", s.settings.RedisAddr)
}

func (s Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", s.settings.RedisPassword)
}

func (s Storage) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", s.settings.RedisDB)
}
