package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Option adjusts the loaded configuration before validation, for example
// to apply command-line flags.
type Option func(*Config)

// Load reads configuration from environment variables.
// It applies defaults for unset values, then opts, and validates the result.
// Returns an error if required values are missing or validation fails.
func Load(opts ...Option) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadSection populates one section, such as *JournalConfig, without
// requiring the variables of the other sections.
func LoadSection(section any) error {
	v := reflect.ValueOf(section)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config load: %T is not a pointer to a struct", section)
	}
	if err := loadStruct(v.Elem()); err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if errs := checkChoices(v.Elem()); len(errs) > 0 {
		return fmt.Errorf("config validation: %s", strings.Join(errs, "; "))
	}
	return nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := lookupEnv(envName, field.Tag.Get("envAlt"))
		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}
		if field.Tag.Get("oneof") != "" {
			value = strings.ToLower(value)
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// lookupEnv returns the trimmed value of the primary variable, falling back to the alternate.
func lookupEnv(name, alt string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" && alt != "" {
		value = strings.TrimSpace(os.Getenv(alt))
	}
	return value
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, checkChoices(reflect.ValueOf(c).Elem())...)

	if c.Input.CSVPath == "" {
		errs = append(errs, "CSV_PATH is required")
	}

	if c.Salesforce.Username == "" {
		errs = append(errs, "LOGIN_USERNAME is required")
	}
	if c.Salesforce.Domain == "" {
		errs = append(errs, "LOGIN_DOMAIN must not be empty")
	}
	if c.Salesforce.RequestTimeout <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT must be positive")
	}

	if c.Engagement.GenericAccountID == "" {
		errs = append(errs, "GENERIC_ACCOUNT_ID is required")
	}
	if c.Sync.CreatesEngagements() {
		if c.Engagement.RecordTypeID == "" {
			errs = append(errs, "ENGAGEMENT_RECORD_TYPE is required when ENGAGEMENT_MODE is create")
		}
		if c.Engagement.PricebookID == "" {
			errs = append(errs, "ENGAGEMENT_STANDARD_PRICEBOOK_ID is required when ENGAGEMENT_MODE is create")
		}
		if c.Engagement.ProductID == "" {
			errs = append(errs, "ENGAGEMENT_PRODUCT_ID is required when ENGAGEMENT_MODE is create")
		}
	}

	if c.Sync.RowDelay < 0 {
		errs = append(errs, "ROW_DELAY must be non-negative")
	}
	if c.Status.Addr != "" && c.Status.ShutdownTimeout <= 0 {
		errs = append(errs, "STATUS_SHUTDOWN_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// checkChoices reports every string field whose value is not listed in its oneof tag.
func checkChoices(v reflect.Value) []string {
	var errs []string
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if field.Type.Kind() == reflect.Struct {
			errs = append(errs, checkChoices(fieldVal)...)
			continue
		}

		choices := field.Tag.Get("oneof")
		if choices == "" || fieldVal.Kind() != reflect.String {
			continue
		}

		allowed := strings.Split(choices, ",")
		value := fieldVal.String()
		ok := false
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				ok = true
				break
			}
		}
		if !ok {
			errs = append(errs, fmt.Sprintf("%s (%q) must be one of: %s",
				field.Tag.Get("env"), value, strings.Join(allowed, ", ")))
		}
	}

	return errs
}

// String returns a safe string representation of the config for logging.
// Fields tagged secret are masked; empty secrets are shown as unset.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	writeStruct(&b, reflect.ValueOf(c).Elem())
	b.WriteString("}")
	return b.String()
}

func writeStruct(b *strings.Builder, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)
		if i > 0 {
			b.WriteString(", ")
		}

		if field.Type.Kind() == reflect.Struct {
			fmt.Fprintf(b, "%s: {", field.Name)
			writeStruct(b, fieldVal)
			b.WriteString("}")
			continue
		}

		if field.Tag.Get("secret") == "true" {
			if fieldVal.IsZero() {
				fmt.Fprintf(b, "%s: [UNSET]", field.Name)
			} else {
				fmt.Fprintf(b, "%s: [MASKED]", field.Name)
			}
			continue
		}

		if fieldVal.Kind() == reflect.String {
			fmt.Fprintf(b, "%s: %q", field.Name, fieldVal.String())
		} else {
			fmt.Fprintf(b, "%s: %v", field.Name, fieldVal.Interface())
		}
	}
}
