package config

import "time"

const (
	AppName = "mktsummary"

	// EnvPrefix namespaces every environment variable, e.g. MKT_DOWNLOAD_WORKERS.
	EnvPrefix = "MKT"

	DefaultBaseURL         = "https://dps.psx.com.pk/download/mkt_summary"
	DefaultDateFormat      = "yyyy-MM-dd"
	DefaultRecordSuffix    = ".lis"
	DefaultOutputExtension = ".xlsx"
	DefaultRequestTimeout  = 60 * time.Second
	DefaultUserAgent       = "mktsummary/1.0"
	DefaultMaxBatchDays    = 366

	// ArchiveExtension is appended to the ISO date in the remote URL.
	ArchiveExtension = ".Z"
)
