// Package middleware provides HTTP middleware configuration options.
package middleware

import (
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/bdlaw/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// RecoveryOptions defines recovery middleware options.
type RecoveryOptions struct {
	// EnableStackTrace 在响应中返回堆栈（生产环境强制关闭）
	EnableStackTrace bool `json:"enable-stack-trace" mapstructure:"enable-stack-trace"`
}

// LoggerOptions defines access-log middleware options.
type LoggerOptions struct {
	SkipPaths []string `json:"skip-paths" mapstructure:"skip-paths"`
}

// CORSOptions defines CORS middleware options.
type CORSOptions struct {
	Enabled          bool     `json:"enabled" mapstructure:"enabled"`
	AllowOrigins     []string `json:"allow-origins" mapstructure:"allow-origins"`
	AllowMethods     []string `json:"allow-methods" mapstructure:"allow-methods"`
	AllowHeaders     []string `json:"allow-headers" mapstructure:"allow-headers"`
	ExposeHeaders    []string `json:"expose-headers" mapstructure:"expose-headers"`
	AllowCredentials bool     `json:"allow-credentials" mapstructure:"allow-credentials"`
	MaxAge           int      `json:"max-age" mapstructure:"max-age"`
}

// TimeoutOptions defines request timeout middleware options.
// 流式接口不受此超时约束。
type TimeoutOptions struct {
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	SkipPaths []string      `json:"skip-paths" mapstructure:"skip-paths"`
}

// BodyLimitOptions defines request body size limits.
type BodyLimitOptions struct {
	MaxSize int64 `json:"max-size" mapstructure:"max-size"`
}

// Options groups the middleware applied by the HTTP server.
type Options struct {
	Recovery  RecoveryOptions  `json:"recovery" mapstructure:"recovery"`
	Logger    LoggerOptions    `json:"logger" mapstructure:"logger"`
	CORS      CORSOptions      `json:"cors" mapstructure:"cors"`
	Timeout   TimeoutOptions   `json:"timeout" mapstructure:"timeout"`
	BodyLimit BodyLimitOptions `json:"body-limit" mapstructure:"body-limit"`
}

// NewOptions 创建默认中间件选项。
func NewOptions() *Options {
	return &Options{
		Logger: LoggerOptions{
			SkipPaths: []string{"/health", "/healthz", "/metrics"},
		},
		CORS: CORSOptions{
			Enabled:       true,
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID", "X-Message-ID"},
			ExposeHeaders: []string{"X-Request-ID", "X-Message-ID"},
			MaxAge:        86400,
		},
		Timeout: TimeoutOptions{
			Timeout:   60 * time.Second,
			SkipPaths: []string{"/v1/chat"},
		},
		BodyLimit: BodyLimitOptions{
			MaxSize: 1 << 20,
		},
	}
}

// AddFlags adds flags for middleware options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "middleware."
	fs.BoolVar(&o.Recovery.EnableStackTrace, p+"recovery.enable-stack-trace", o.Recovery.EnableStackTrace, "Return panic stack traces to clients (ignored in production).")
	fs.StringSliceVar(&o.Logger.SkipPaths, p+"logger.skip-paths", o.Logger.SkipPaths, "Paths excluded from access logs.")
	fs.BoolVar(&o.CORS.Enabled, p+"cors.enabled", o.CORS.Enabled, "Enable CORS headers.")
	fs.StringSliceVar(&o.CORS.AllowOrigins, p+"cors.allow-origins", o.CORS.AllowOrigins, "CORS allowed origins.")
	fs.StringSliceVar(&o.CORS.AllowMethods, p+"cors.allow-methods", o.CORS.AllowMethods, "CORS allowed methods.")
	fs.StringSliceVar(&o.CORS.AllowHeaders, p+"cors.allow-headers", o.CORS.AllowHeaders, "CORS allowed headers.")
	fs.StringSliceVar(&o.CORS.ExposeHeaders, p+"cors.expose-headers", o.CORS.ExposeHeaders, "Response headers exposed to browsers.")
	fs.BoolVar(&o.CORS.AllowCredentials, p+"cors.allow-credentials", o.CORS.AllowCredentials, "CORS allow credentials.")
	fs.IntVar(&o.CORS.MaxAge, p+"cors.max-age", o.CORS.MaxAge, "CORS preflight max age in seconds.")
	fs.DurationVar(&o.Timeout.Timeout, p+"timeout.timeout", o.Timeout.Timeout, "Per-request timeout for non-streaming endpoints.")
	fs.StringSliceVar(&o.Timeout.SkipPaths, p+"timeout.skip-paths", o.Timeout.SkipPaths, "Paths excluded from the request timeout.")
	fs.Int64Var(&o.BodyLimit.MaxSize, p+"body-limit.max-size", o.BodyLimit.MaxSize, "Maximum request body size in bytes.")
}

// Validate validates the middleware options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.CORS.Enabled && len(o.CORS.AllowOrigins) == 0 {
		errs = append(errs, errors.New("CORS: AllowOrigins must be explicitly configured, empty list not allowed"))
	}
	if o.Timeout.Timeout < 0 {
		errs = append(errs, errors.New("middleware.timeout.timeout must not be negative"))
	}
	if o.BodyLimit.MaxSize <= 0 {
		errs = append(errs, errors.New("middleware.body-limit.max-size must be positive"))
	}
	return errs
}

// Complete completes the middleware options with defaults.
func (o *Options) Complete() error {
	return nil
}
