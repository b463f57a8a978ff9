package config

import "time"

type LedgerConfig struct {
	LogLevel  string         `json:"logLevel" mapstructure:"logLevel"`
	LogFormat string         `json:"logFormat" mapstructure:"logFormat"`
	Db        *DbConfig      `json:"db" mapstructure:"db"`
	Invoices  *InvoiceConfig `json:"invoices" mapstructure:"invoices"`
}

type DbConfig struct {
	Mode   string        `json:"mode" mapstructure:"mode"`
	Sqlite *SqliteConfig `json:"sqlite" mapstructure:"sqlite"`
}

type SqliteConfig struct {
	Path         string `json:"path" mapstructure:"path"`
	MaxIdleConns int    `json:"maxIdleConns" mapstructure:"maxIdleConns"`
	MaxOpenConns int    `json:"maxOpenConns" mapstructure:"maxOpenConns"`
}

type InvoiceConfig struct {
	FilePath     string        `json:"filePath" mapstructure:"filePath"`
	FetchTimeout time.Duration `json:"fetchTimeout" mapstructure:"fetchTimeout"`
	FetchRetries int           `json:"fetchRetries" mapstructure:"fetchRetries"`
	CacheExpiry  time.Duration `json:"cacheExpiry" mapstructure:"cacheExpiry"`
}

func getDefaultConfig() *LedgerConfig {
	return &LedgerConfig{
		LogLevel:  "INFO",
		LogFormat: "text",
		Db: &DbConfig{
			Mode: "sqlite",
			Sqlite: &SqliteConfig{
				Path:         "wallet.sqlite",
				MaxIdleConns: 10,
				MaxOpenConns: 80,
			},
		},
		Invoices: &InvoiceConfig{
			FilePath:     "invoices.json",
			FetchTimeout: 30 * time.Second,
			FetchRetries: 3,
			CacheExpiry:  time.Minute,
		},
	}
}
