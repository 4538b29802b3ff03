package config

import (
	"os"
	"sync"

	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
)

// ServerlessConfig holds serverless-specific configuration
type ServerlessConfig struct {
	IsLambda     bool
	FunctionName string
	Region       string
	Stage        string
}

// Global serverless configuration
var (
	serverlessConfig *ServerlessConfig
	serverlessOnce   sync.Once
)

// GetServerlessConfig returns the serverless configuration
func GetServerlessConfig() *ServerlessConfig {
	serverlessOnce.Do(func() {
		serverlessConfig = &ServerlessConfig{
			IsLambda:     isRunningInLambda(),
			FunctionName: os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
			Region:       os.Getenv("AWS_REGION"),
			Stage:        GetEnv("STAGE", "dev"),
		}
	})
	return serverlessConfig
}

// isRunningInLambda detects if the application is running in AWS Lambda
func isRunningInLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// IsServerlessMode returns true if running in serverless mode
func IsServerlessMode() bool {
	return GetServerlessConfig().IsLambda
}

// GetDeploymentMode returns the current deployment mode
func GetDeploymentMode() string {
	if IsServerlessMode() {
		return "serverless"
	}
	return "server"
}

// AdaptConfigForServerless moves file based stores off the read-only
// Lambda filesystem. With no explicit backend choice, Lambda uses DynamoDB.
func AdaptConfigForServerless(config *Config, serverless *ServerlessConfig) *Config {
	if serverless == nil || !serverless.IsLambda {
		return config
	}

	switch config.Store.NormalizedBackend() {
	case database.BackendSQLite:
		if os.Getenv("STORE_BACKEND") == "" {
			config.Store.Backend = database.BackendDynamoDB
			if serverless.Region != "" {
				config.Store.DynamoDB.Region = serverless.Region
			}
		} else {
			// Use EFS mounted SQLite for serverless
			config.Store.Database.Path = GetEnv("EFS_DB_PATH", "/mnt/efs/repaart.db")
			config.Store.Migration.BackupBeforeMigration = false
		}
	case database.BackendLocal:
		config.Store.LocalPath = "/tmp/repaart-documents"
	}

	// API Gateway throttles requests itself
	config.RateLimit.Enabled = false

	return config
}

// LoadServerlessConfig loads the configuration adapted to the current deployment mode
func LoadServerlessConfig() (*Config, error) {
	config, err := Load()
	if err != nil {
		return nil, err
	}

	config = AdaptConfigForServerless(config, GetServerlessConfig())
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
