package ratelimit

import "github.com/pulse/vidmod/common/config"

// Policy is a per-key request budget over a fixed window
type Policy struct {
	Limit         int64
	WindowSeconds int
}

// DefaultUploadPolicy allows 10 uploads per user per minute
var DefaultUploadPolicy = Policy{
	Limit:         10,
	WindowSeconds: 60,
}

// UploadPolicyFromConfig builds the upload policy, falling back to defaults
// for non-positive values
func UploadPolicyFromConfig(cfg config.RateLimitConfig) Policy {
	p := DefaultUploadPolicy
	if cfg.UploadsPerWindow > 0 {
		p.Limit = cfg.UploadsPerWindow
	}
	if cfg.WindowSeconds > 0 {
		p.WindowSeconds = cfg.WindowSeconds
	}
	return p
}
