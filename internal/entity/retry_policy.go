package entity

import "time"

// RetryPolicy configures a fetch sequence. It is read-only once a fetch starts.
type RetryPolicy struct {
	MaxRetries       int           `mapstructure:"max_retries" json:"max_retries"`
	BaseDelay        time.Duration `mapstructure:"base_delay" json:"base_delay"`
	JitterRange      time.Duration `mapstructure:"jitter_range" json:"jitter_range"`
	MaxRedirectDepth int           `mapstructure:"max_redirect_depth" json:"max_redirect_depth"`

	// ServerErrorDelay is the fixed wait after a 5xx or a network error.
	ServerErrorDelay time.Duration `mapstructure:"server_error_delay" json:"server_error_delay"`
	// Timeout is the first attempt's timeout; TimeoutStep is added after each network failure.
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	TimeoutStep time.Duration `mapstructure:"timeout_step" json:"timeout_step"`
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       3,
		BaseDelay:        time.Second,
		JitterRange:      time.Second,
		MaxRedirectDepth: 5,
		ServerErrorDelay: 2 * time.Second,
		Timeout:          10 * time.Second,
		TimeoutStep:      5 * time.Second,
	}
}

// Normalize fills unset or invalid fields with defaults.
func (p RetryPolicy) Normalize() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.JitterRange < 0 {
		p.JitterRange = 0
	}
	if p.MaxRedirectDepth < 0 {
		p.MaxRedirectDepth = 0
	}
	if p.ServerErrorDelay < 0 {
		p.ServerErrorDelay = 0
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.TimeoutStep < 0 {
		p.TimeoutStep = 0
	}
	return p
}
