// =============================================================================
// 📦 StrengthFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Budget:    DefaultBudgetConfig(),
		Crew:      DefaultCrewConfig(),
		Store:     DefaultStoreConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		AnalysisTimeout: 4 * time.Minute,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:       "groq",
		Model:          "llama-3.1-8b-instant",
		MaxTokens:      512,
		Temperature:    0.2,
		Timeout:        60 * time.Second,
		ResponseFormat: "json_object",
		MaxRetries:     0,
	}
}

// DefaultBudgetConfig 返回默认预算（免费档 Groq 限额）
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		RPMLimit:      3,
		TPMLimit:      6000,
		TokensPerCall: 630,
		Window:        time.Minute,
	}
}

// DefaultCrewConfig 返回默认团队配置，成员留空表示使用内置分类
func DefaultCrewConfig() CrewConfig {
	return CrewConfig{Name: "strengths"}
}

// DefaultStoreConfig 返回默认报告存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:          "memory",
		Retention:       24 * time.Hour,
		MaxReports:      1000,
		CleanupInterval: time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		KeyPrefix:    "strengthflow:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "strengthflow",
		Name:            "strengthflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "strengthflow",
		SampleRate:   0.1,
	}
}
