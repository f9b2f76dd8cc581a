// Package config provides centralized configuration for the service-user sync.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
//
// The resulting Config is built once in the run command and passed by pointer
// into the session, the resolvers and the driver. Nothing mutates it afterwards.
package config

import "time"

// Contact lookup policies.
const (
	// ContactLookupStrict matches contacts on the external user id only.
	ContactLookupStrict = "strict"
	// ContactLookupRelaxed matches on external user id OR email and overwrites the match.
	ContactLookupRelaxed = "relaxed"
)

// Engagement modes.
const (
	EngagementModeCreate = "create"
	EngagementModeLookup = "lookup"
)

// Missing-engagement policies.
const (
	MissingEngagementSkip        = "skip"
	MissingEngagementContactOnly = "contact-only"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Input      InputConfig
	Salesforce SalesforceConfig
	Engagement EngagementConfig
	Sync       SyncConfig
	Journal    JournalConfig
	Status     StatusConfig
	Logging    LoggingConfig
}

// InputConfig holds the service users export settings.
type InputConfig struct {
	// CSVPath is the path of the service users export (required, or the --csv flag)
	CSVPath string `env:"CSV_PATH"`
}

// SalesforceConfig holds the CRM login and transport settings.
type SalesforceConfig struct {
	Username      string `env:"LOGIN_USERNAME" required:"true"`
	Password      string `env:"LOGIN_PASSWORD" required:"true" secret:"true"`
	SecurityToken string `env:"LOGIN_SECURITY_TOKEN" secret:"true"`

	// Domain is the login host prefix: "login" for production, "test" for sandboxes
	Domain string `env:"LOGIN_DOMAIN" default:"login"`

	APIVersion string `env:"SALESFORCE_API_VERSION" default:"59.0"`

	// ClientID is sent in the SOAP CallOptions header on login (default: Notify)
	ClientID string `env:"SALESFORCE_CLIENT_ID" default:"Notify"`

	// RequestTimeout is enforced on every outbound request (default: 3s)
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" default:"3s"`
}

// EngagementConfig holds the ids used when building CRM records.
type EngagementConfig struct {
	// GenericAccountID owns records whose organisation cannot be matched (required)
	GenericAccountID string `env:"GENERIC_ACCOUNT_ID" required:"true"`

	RecordTypeID string `env:"ENGAGEMENT_RECORD_TYPE"`
	PricebookID  string `env:"ENGAGEMENT_STANDARD_PRICEBOOK_ID"`
	ProductID    string `env:"ENGAGEMENT_PRODUCT_ID"`
}

// SyncConfig holds reconciliation policies.
type SyncConfig struct {
	// RowDelay is slept after every row to stay under the API rate ceiling (default: 1s)
	RowDelay time.Duration `env:"ROW_DELAY" default:"1s"`

	ContactLookup     string `env:"CONTACT_LOOKUP" default:"strict" oneof:"strict,relaxed"`
	EngagementMode    string `env:"ENGAGEMENT_MODE" default:"create" oneof:"create,lookup"`
	MissingEngagement string `env:"MISSING_ENGAGEMENT" default:"skip" oneof:"skip,contact-only"`
}

// JournalConfig holds the mutation journal settings.
type JournalConfig struct {
	// DSN selects the backend: empty disables, postgres:// uses Postgres, anything else is a sqlite path
	DSN string `env:"JOURNAL_DSN" envAlt:"DATABASE_URL" secret:"true"`
}

// StatusConfig holds the optional progress endpoint settings.
type StatusConfig struct {
	// Addr is the listen address for /status; empty disables the endpoint
	Addr string `env:"STATUS_ADDR"`

	ShutdownTimeout time.Duration `env:"STATUS_SHUTDOWN_TIMEOUT" default:"5s"`

	// APIKeys, when set, are required on /status as X-API-Key or a bearer token
	APIKeys []string `env:"STATUS_API_KEYS" secret:"true"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose X-Real-IP
	// and X-Forwarded-For headers are believed
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" oneof:"debug,info,warn,error"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" oneof:"text,json"`
}

// Relaxed reports whether contacts are matched by id OR email and updated on match.
func (c *SyncConfig) Relaxed() bool {
	return c.ContactLookup == ContactLookupRelaxed
}

// CreatesEngagements reports whether missing engagements are created.
func (c *SyncConfig) CreatesEngagements() bool {
	return c.EngagementMode != EngagementModeLookup
}
