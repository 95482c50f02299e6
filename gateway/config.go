package gateway

import (
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variables read by LoadHTTPConfig.
const (
	EnvEndpoint         = "QUERYSYNC_ENDPOINT"
	EnvAccessKey        = "QUERYSYNC_ACCESS_KEY"
	EnvTimeout          = "QUERYSYNC_TIMEOUT"
	EnvMaxRetries       = "QUERYSYNC_MAX_RETRIES"
	EnvRetryBaseDelay   = "QUERYSYNC_RETRY_BASE_DELAY"
	EnvProcedureTimeout = "QUERYSYNC_PROCEDURE_TIMEOUT"
)

// LoadHTTPConfig reads gateway configuration from the environment, loading a
// local .env file first when present. Endpoint and access key are required;
// a missing value surfaces as a config-kind error.
func LoadHTTPConfig() (HTTPConfig, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	_ = v.BindEnv("endpoint", EnvEndpoint)
	_ = v.BindEnv("access_key", EnvAccessKey)
	_ = v.BindEnv("timeout", EnvTimeout)
	_ = v.BindEnv("max_retries", EnvMaxRetries)
	_ = v.BindEnv("retry_base_delay", EnvRetryBaseDelay)
	_ = v.BindEnv("procedure_timeout", EnvProcedureTimeout)

	cfg := HTTPConfig{
		Endpoint:         v.GetString("endpoint"),
		AccessKey:        v.GetString("access_key"),
		Timeout:          v.GetDuration("timeout"),
		MaxRetries:       v.GetInt("max_retries"),
		RetryBaseDelay:   v.GetDuration("retry_base_delay"),
		ProcedureTimeout: v.GetDuration("procedure_timeout"),
	}

	if err := cfg.Validate(); err != nil {
		return HTTPConfig{}, err
	}

	return cfg.withDefaults(), nil
}
