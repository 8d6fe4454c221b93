// Package config loads the mktsummary configuration.
//
// Values are resolved in increasing order of precedence:
//
//	1. Built-in defaults (Default)
//	2. A YAML file named by MKT_CONFIG_FILE, or config.yaml / configs/config.yaml
//	3. Environment variables prefixed with MKT, optionally seeded from a .env file
//
// Environment keys follow the section layout of Config:
//
//	MKT_DOWNLOAD_BASE_URL=https://dps.psx.com.pk/download/mkt_summary
//	MKT_DOWNLOAD_OUTPUT_DIR=~/Downloads
//	MKT_DOWNLOAD_DATE_FORMAT=yyyy-MM-dd
//	MKT_DOWNLOAD_WORKERS=4
//	MKT_LOGGING_LEVEL=debug
//	MKT_SERVER_PORT=8080
//	MKT_STORAGE_S3_BUCKET=market-archive
//
// Command-line flags are applied by the caller after Load returns.
package config
