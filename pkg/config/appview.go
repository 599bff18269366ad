package config

import "time"

const (
	// DefaultService is the entryway used for unauthenticated calls and for
	// accounts without a custom PDS.
	DefaultService = "https://bsky.social"

	// DefaultBskyProxyDID routes through the main Bluesky appview.
	DefaultBskyProxyDID = "did:web:api.bsky.app"

	// DefaultAppviewProxyDID routes through the dedicated appview backend.
	DefaultAppviewProxyDID = "did:web:appview.pbllc.social"

	// AppviewServiceID is the service fragment appended to a proxy DID.
	AppviewServiceID = "bsky_appview"

	// DefaultDiscoverFeedURI is the production "Discover" feed generator.
	DefaultDiscoverFeedURI = "at://did:plc:z72i7hdynmk6r22z27h6tvur/app.bsky.feed.generator/whats-hot"
)

// Appview holds the settings shared by every agent and query layer in the process.
type Appview struct {
	Service         string
	BskyProxyDID    string
	AppviewProxyDID string
	DiscoverFeedURI string
	HTTPTimeout     time.Duration
	// QueryRetries is how often a failed read is retried. Writes never are.
	QueryRetries int

	PreferencesStaleTime time.Duration
	CacheGCTime          time.Duration
	CacheMaxEntries      int

	LabelerStore     string // memory|file|redis
	LabelerStorePath string
	RedisURL         string
}

// LoadAppview reads appview settings from the environment.
func LoadAppview() Appview {
	return Appview{
		Service:              GetEnv("BSKY_SERVICE", DefaultService),
		BskyProxyDID:         GetEnv("BSKY_PROXY_DID", DefaultBskyProxyDID),
		AppviewProxyDID:      GetEnv("APPVIEW_PROXY_DID", DefaultAppviewProxyDID),
		DiscoverFeedURI:      GetEnv("DISCOVER_FEED_URI", DefaultDiscoverFeedURI),
		HTTPTimeout:          GetEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		QueryRetries:         GetEnvInt("QUERY_RETRIES", 2),
		PreferencesStaleTime: GetEnvDuration("PREFERENCES_STALE_TIME", 15*time.Second),
		CacheGCTime:          GetEnvDuration("CACHE_GC_TIME", 5*time.Minute),
		CacheMaxEntries:      GetEnvInt("CACHE_MAX_ENTRIES", 16),
		LabelerStore:         GetEnv("LABELER_STORE", "file"),
		LabelerStorePath:     GetEnv("LABELER_STORE_PATH", ".skyprefs/labelers.json"),
		RedisURL:             GetEnv("REDIS_URL", ""),
	}
}

// BskyProxyHeader is the atproto-proxy value for the main appview.
func (a Appview) BskyProxyHeader() string {
	return a.BskyProxyDID + "#" + AppviewServiceID
}

// AppviewProxyHeader is the atproto-proxy value for the dedicated appview.
func (a Appview) AppviewProxyHeader() string {
	return a.AppviewProxyDID + "#" + AppviewServiceID
}
