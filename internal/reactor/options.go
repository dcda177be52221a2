package reactor

import (
	"github.com/roach88/reactor/internal/executor"
	"github.com/roach88/reactor/internal/signature"
	"github.com/roach88/reactor/internal/syncmgr"
)

// DefaultMaxRetries is the retry budget given to every submitted job.
const DefaultMaxRetries = 3

// DefaultResultCacheSize bounds the finished job results kept for Wait.
const DefaultResultCacheSize = 4096

type options struct {
	executor        executor.Config
	sync            syncmgr.Config
	maxRetries      int
	resultCacheSize int
}

// Option configures a Reactor.
type Option func(*options)

// WithExecutorConfig sets the executor configuration. Signer and Verifier
// set through their own options are kept.
func WithExecutorConfig(cfg executor.Config) Option {
	return func(o *options) {
		signer, verifier := o.executor.Signer, o.executor.Verifier
		o.executor = cfg
		if cfg.Signer == nil {
			o.executor.Signer = signer
		}
		if cfg.Verifier == nil {
			o.executor.Verifier = verifier
		}
	}
}

// WithSyncConfig sets the sync manager configuration.
func WithSyncConfig(cfg syncmgr.Config) Option {
	return func(o *options) {
		o.sync = cfg
	}
}

// WithMaxRetries sets the retry budget of submitted jobs. Zero disables
// retries.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = n
	}
}

// WithSigner signs locally applied actions.
func WithSigner(s signature.Signer) Option {
	return func(o *options) {
		o.executor.Signer = s
	}
}

// WithVerifier checks signatures of loaded actions.
func WithVerifier(v signature.Verifier) Option {
	return func(o *options) {
		o.executor.Verifier = v
	}
}

// WithClock stamps operations with now (unix ms) instead of the wall clock.
func WithClock(now func() int64) Option {
	return func(o *options) {
		o.executor.Now = now
	}
}

// WithResultCacheSize bounds the number of finished job results kept.
func WithResultCacheSize(n int) Option {
	return func(o *options) {
		o.resultCacheSize = n
	}
}
