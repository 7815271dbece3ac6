package config

const (
	EnvPrefix = "TABLESIDE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	EnvAppEnv           = "TABLESIDE_APP_ENV"
	EnvPort             = "TABLESIDE_APP_PORT"
	EnvStorePath        = "TABLESIDE_STORE_PATH"
	EnvRemoteBaseURL    = "TABLESIDE_REMOTE_BASE_URL"
	EnvSubmitTimeout    = "TABLESIDE_REMOTE_SUBMIT_TIMEOUT"
	EnvProbeInterval    = "TABLESIDE_CONNECTIVITY_PROBE_INTERVAL"
	EnvReconcileEvery   = "TABLESIDE_RECONCILE_INTERVAL"
	EnvDevServerDriver  = "TABLESIDE_DEVSERVER_DB_DRIVER"
	EnvDevServerDSN     = "TABLESIDE_DEVSERVER_DB_DSN"
	EnvDevServerPort    = "TABLESIDE_DEVSERVER_PORT"
)
