package redisx

import "time"

const (
	// Rate-limit window counters: ratelimit:{endpoint-class}:{client}
	KeyRateLimitPrefix = "ratelimit:"

	// Dedup for event consumers: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDedup = 48 * time.Hour
)
