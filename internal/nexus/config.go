package nexus

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// ConfigError represents domain-specific configuration errors
type ConfigError struct {
	Code    string
	Message string
	Field   string
	Cause   error
}

func (e ConfigError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field: %s)", msg, e.Field)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e ConfigError) Unwrap() error {
	return e.Cause
}

const (
	ErrCodeInvalidType   = "CONFIG_INVALID_TYPE"
	ErrCodeFileRead      = "CONFIG_FILE_READ_FAILED"
	ErrCodeValidation    = "CONFIG_VALIDATION_FAILED"
	ErrCodeEnvironment   = "CONFIG_ENV_READ_FAILED"
	ErrCodeMerge         = "CONFIG_MERGE_FAILED"
	ErrCodeSecurityCheck = "CONFIG_SECURITY_CHECK_FAILED"
)

// Validator handles configuration validation
type Validator interface {
	Validate(ctx context.Context, cfg interface{}) error
}

// SecurityChecker performs security validation on configuration
type SecurityChecker interface {
	CheckSecurity(ctx context.Context, cfg interface{}) error
}

// LoaderOptions contains configuration for the loader
type LoaderOptions struct {
	FileName        string
	OnlyEnvironment bool
	Defaults        interface{}
	Validator       Validator
	SecurityChecker SecurityChecker
	Timeout         time.Duration
}

// Loader reads a config struct from an optional .env style file and the
// process environment, fills unset fields from defaults and validates it.
type Loader struct {
	options LoaderOptions
}

// LoaderOption is a functional option for configuring the loader
type LoaderOption func(*LoaderOptions)

// WithFileName sets the configuration file. A missing file is not an error.
func WithFileName(fileName string) LoaderOption {
	return func(o *LoaderOptions) {
		o.FileName = fileName
	}
}

// WithOnlyEnvironment configures loader to only read from environment
func WithOnlyEnvironment() LoaderOption {
	return func(o *LoaderOptions) {
		o.OnlyEnvironment = true
		o.FileName = ""
	}
}

// WithDefaults fills zero-valued fields from defaults, which must be a
// pointer to the same struct type as the target.
func WithDefaults(defaults interface{}) LoaderOption {
	return func(o *LoaderOptions) {
		o.Defaults = defaults
	}
}

// WithValidator sets a custom validator
func WithValidator(v Validator) LoaderOption {
	return func(o *LoaderOptions) {
		o.Validator = v
	}
}

// WithSecurityChecker sets a custom security checker
func WithSecurityChecker(sc SecurityChecker) LoaderOption {
	return func(o *LoaderOptions) {
		o.SecurityChecker = sc
	}
}

// WithTimeout sets the timeout for loading operations
func WithTimeout(timeout time.Duration) LoaderOption {
	return func(o *LoaderOptions) {
		o.Timeout = timeout
	}
}

// NewLoader creates a new configuration loader with options
func NewLoader(opts ...LoaderOption) *Loader {
	options := LoaderOptions{
		FileName:        ".env",
		Validator:       &DefaultValidator{},
		SecurityChecker: &DefaultSecurityChecker{},
		Timeout:         30 * time.Second,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &Loader{options: options}
}

// Load loads configuration from all configured sources
func (l *Loader) Load(cfg interface{}) error {
	return l.LoadWithContext(context.Background(), cfg)
}

// LoadWithContext loads configuration with context support
func (l *Loader) LoadWithContext(ctx context.Context, cfg interface{}) error {
	if l.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.options.Timeout)
		defer cancel()
	}

	if err := validateInputType(cfg); err != nil {
		return err
	}

	if err := l.read(cfg); err != nil {
		return err
	}

	if l.options.Defaults != nil {
		if err := mergo.Merge(cfg, l.options.Defaults); err != nil {
			return &ConfigError{Code: ErrCodeMerge, Message: "failed to merge defaults", Cause: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := l.options.SecurityChecker.CheckSecurity(ctx, cfg); err != nil {
		return &ConfigError{Code: ErrCodeSecurityCheck, Message: "security validation failed", Cause: err}
	}

	if err := l.options.Validator.Validate(ctx, cfg); err != nil {
		return &ConfigError{Code: ErrCodeValidation, Message: "configuration validation failed", Cause: err}
	}

	return nil
}

func validateInputType(cfg interface{}) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return &ConfigError{
			Code:    ErrCodeInvalidType,
			Message: fmt.Sprintf("configuration must be a pointer to struct, got %T", cfg),
		}
	}
	return nil
}

// read populates cfg from the file when present, then from the environment.
func (l *Loader) read(cfg interface{}) error {
	if !l.options.OnlyEnvironment && l.options.FileName != "" {
		if _, err := os.Stat(l.options.FileName); err == nil {
			if err := cleanenv.ReadConfig(l.options.FileName, cfg); err != nil {
				return &ConfigError{
					Code:    ErrCodeFileRead,
					Message: "failed to read configuration file",
					Field:   l.options.FileName,
					Cause:   err,
				}
			}
			return nil
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return &ConfigError{Code: ErrCodeEnvironment, Message: "failed to read environment variables", Cause: err}
	}
	return nil
}

// DefaultValidator implements basic validation using go-playground/validator
type DefaultValidator struct {
	validator *validator.Validate
}

func (v *DefaultValidator) Validate(_ context.Context, cfg interface{}) error {
	if v.validator == nil {
		v.validator = validator.New()
	}
	return v.validator.Struct(cfg)
}

// DefaultSecurityChecker rejects well known placeholder values in fields
// whose names look sensitive. Nested structs are walked.
type DefaultSecurityChecker struct{}

var (
	sensitiveFields = []string{"password", "secret", "key", "token", "credential"}
	weakValues      = []string{"password", "123456", "admin", "changeme", "secret"}
)

func (sc *DefaultSecurityChecker) CheckSecurity(_ context.Context, cfg interface{}) error {
	return sc.walk(reflect.Indirect(reflect.ValueOf(cfg)), "")
}

func (sc *DefaultSecurityChecker) walk(val reflect.Value, prefix string) error {
	if val.Kind() != reflect.Struct {
		return nil
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		if !fieldType.IsExported() {
			continue
		}
		name := prefix + fieldType.Name

		switch field.Kind() {
		case reflect.Struct:
			if err := sc.walk(field, name+"."); err != nil {
				return err
			}
		case reflect.Ptr:
			if !field.IsNil() {
				if err := sc.walk(field.Elem(), name+"."); err != nil {
					return err
				}
			}
		case reflect.String:
			if isSensitiveField(fieldType.Name) && isWeakValue(field.String()) {
				return fmt.Errorf("sensitive field %s contains a placeholder credential", name)
			}
		}
	}

	return nil
}

func isSensitiveField(fieldName string) bool {
	fieldLower := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(fieldLower, sensitive) {
			return true
		}
	}
	return false
}

func isWeakValue(value string) bool {
	valueLower := strings.ToLower(strings.TrimSpace(value))
	for _, weak := range weakValues {
		if valueLower == weak {
			return true
		}
	}
	return false
}
