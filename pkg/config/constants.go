package config

const (
	EnvPrefix = "FOODRESCUE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StagingBackendRedis  = "redis"
	StagingBackendMemory = "memory"
)

const (
	EnvAppEnv   = "FOODRESCUE_APP_ENV"
	EnvPort     = "FOODRESCUE_APP_PORT"
	EnvLogLvl   = "FOODRESCUE_LOG_LEVEL"
	EnvDBDSN    = "FOODRESCUE_DB_DSN"
	EnvDBHost   = "FOODRESCUE_DB_HOST"
	EnvDBUser   = "FOODRESCUE_DB_USER"
	EnvDBName   = "FOODRESCUE_DB_NAME"
	EnvDBPass   = "FOODRESCUE_DB_PASSWORD"
	EnvDBPort   = "FOODRESCUE_DB_PORT"
	EnvDBSSL    = "FOODRESCUE_DB_SSLMODE"
	EnvRedisURL = "FOODRESCUE_REDIS_URL"

	EnvJWTSecret  = "FOODRESCUE_JWT_SECRET"
	EnvJWTIssuer  = "FOODRESCUE_JWT_ISSUER"
	EnvJWTExpMins = "FOODRESCUE_JWT_EXPIRATION_MINUTES"

	EnvStagingTTL         = "FOODRESCUE_STAGING_TTL"
	EnvStagingBackend     = "FOODRESCUE_STAGING_BACKEND"
	EnvPickupCodeAttempts = "FOODRESCUE_PICKUP_CODE_ATTEMPTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
