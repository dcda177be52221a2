package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DatabasePathKey     = "database.path"
	DefaultDatabasePath = "reactor.db"

	ExecutorConcurrencyKey     = "executor.concurrency"
	DefaultExecutorConcurrency = 4

	ExecutorJobTimeoutKey     = "executor.job_timeout"
	DefaultExecutorJobTimeout = 30 * time.Second

	ExecutorMaxRetriesKey     = "executor.max_retries"
	DefaultExecutorMaxRetries = 3

	ExecutorCacheSizeKey     = "executor.cache_size"
	DefaultExecutorCacheSize = 256

	QueueBranchKey     = "queue.branch"
	DefaultQueueBranch = "main"

	LoggingFormatKey     = "logging.format"
	DefaultLoggingFormat = "text"

	LoggingLevelKey     = "logging.level"
	DefaultLoggingLevel = "info"

	LoggingOutputKey     = "logging.output"
	DefaultLoggingOutput = "-"

	LoggingFileMaxSizeMBKey     = "logging.file_max_size_mb"
	DefaultLoggingFileMaxSizeMB = 100

	LoggingFilesKeepKey     = "logging.files_keep"
	DefaultLoggingFilesKeep = 5

	ListenAddressKey     = "listen_address"
	DefaultListenAddress = "127.0.0.1:8787"

	SyncBatchSizeKey     = "sync.batch_size"
	DefaultSyncBatchSize = 100

	SyncPollIntervalKey     = "sync.poll_interval"
	DefaultSyncPollInterval = 5 * time.Second

	SyncRemotesKey = "sync.remotes"

	ModelsDirKey = "models.dir"

	SigningKeyFileKey           = "signing.key_file"
	SigningSignerIDKey          = "signing.signer_id"
	SigningRequireSignaturesKey = "signing.require_signatures"
	SigningTrustedKeysKey       = "signing.trusted_keys"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault(DatabasePathKey, DefaultDatabasePath)

	v.SetDefault(ExecutorConcurrencyKey, DefaultExecutorConcurrency)
	v.SetDefault(ExecutorJobTimeoutKey, DefaultExecutorJobTimeout)
	v.SetDefault(ExecutorMaxRetriesKey, DefaultExecutorMaxRetries)
	v.SetDefault(ExecutorCacheSizeKey, DefaultExecutorCacheSize)

	v.SetDefault(QueueBranchKey, DefaultQueueBranch)

	v.SetDefault(LoggingFormatKey, DefaultLoggingFormat)
	v.SetDefault(LoggingLevelKey, DefaultLoggingLevel)
	v.SetDefault(LoggingOutputKey, DefaultLoggingOutput)
	v.SetDefault(LoggingFileMaxSizeMBKey, DefaultLoggingFileMaxSizeMB)
	v.SetDefault(LoggingFilesKeepKey, DefaultLoggingFilesKeep)

	v.SetDefault(ListenAddressKey, DefaultListenAddress)

	v.SetDefault(SyncBatchSizeKey, DefaultSyncBatchSize)
	v.SetDefault(SyncPollIntervalKey, DefaultSyncPollInterval)
	v.SetDefault(SyncRemotesKey, []any{})

	v.SetDefault(ModelsDirKey, "")

	v.SetDefault(SigningKeyFileKey, "")
	v.SetDefault(SigningSignerIDKey, "")
	v.SetDefault(SigningRequireSignaturesKey, false)
	v.SetDefault(SigningTrustedKeysKey, map[string]string{})
}
