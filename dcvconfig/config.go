// Package dcvconfig builds and validates the engine-wide configuration
// described in spec §6.5: DNS servers, timeouts, redirect limits, random
// value parameters, and the injected MpicClient. Struct tags are validated
// through github.com/letsencrypt/validator/v10 instead of hand-written field
// checks.
package dcvconfig

import (
	"io"
	"time"

	validator "github.com/letsencrypt/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sunforge-ca/dcv/mpic"
)

// Config is the full set of options the DCV engine needs to construct its
// probe clients, validators, and MPIC orchestrator.
type Config struct {
	// DNS probing
	DNSServers     []string      `yaml:"dnsServers" validate:"required,min=1"`
	DNSDialTimeout time.Duration `yaml:"dnsDialTimeout" validate:"required"`
	DNSMaxRetries  int           `yaml:"dnsMaxRetries" validate:"min=0,max=5"`

	// File validation
	FileMaxRedirects              int  `yaml:"fileMaxRedirects" validate:"min=0,max=20"`
	FileValidationCheckHTTPS      bool `yaml:"fileValidationCheckHttps"`
	FileValidationCheckHTTPSFirst bool `yaml:"fileValidationCheckHttpsFirst"`

	// Random value / request token
	RandomValueCharset        string `yaml:"randomValueCharset"`
	RandomValueLength         int    `yaml:"randomValueLength" validate:"min=16,max=128"`
	RandomValueValidityPeriod int    `yaml:"randomValueValidityPeriod" validate:"min=1,max=30"`

	// WHOIS
	WhoisTimeout time.Duration `yaml:"whoisTimeout" validate:"required"`

	// MPIC
	MpicClient           mpic.Client `validate:"required"`
	EnforceCorroboration bool        `yaml:"enforceCorroboration"`

	// PSL overrides, if any
	PslOverrideRules []string `yaml:"pslOverrideRules"`
}

// Option mutates a Config under construction.
type Option func(*Config)

func WithDNSServers(servers []string) Option    { return func(c *Config) { c.DNSServers = servers } }
func WithDNSDialTimeout(d time.Duration) Option { return func(c *Config) { c.DNSDialTimeout = d } }
func WithDNSMaxRetries(n int) Option            { return func(c *Config) { c.DNSMaxRetries = n } }
func WithFileMaxRedirects(n int) Option { return func(c *Config) { c.FileMaxRedirects = n } }
func WithFileValidationCheckHTTPS(b bool) Option {
	return func(c *Config) { c.FileValidationCheckHTTPS = b }
}
func WithFileValidationCheckHTTPSFirst(b bool) Option {
	return func(c *Config) { c.FileValidationCheckHTTPSFirst = b }
}
func WithRandomValueCharset(s string) Option { return func(c *Config) { c.RandomValueCharset = s } }
func WithRandomValueLength(n int) Option     { return func(c *Config) { c.RandomValueLength = n } }
func WithRandomValueValidityPeriod(days int) Option {
	return func(c *Config) { c.RandomValueValidityPeriod = days }
}
func WithWhoisTimeout(d time.Duration) Option { return func(c *Config) { c.WhoisTimeout = d } }
func WithMpicClient(client mpic.Client) Option { return func(c *Config) { c.MpicClient = client } }
func WithEnforceCorroboration(b bool) Option   { return func(c *Config) { c.EnforceCorroboration = b } }
func WithPslOverrideRules(rules []string) Option {
	return func(c *Config) { c.PslOverrideRules = rules }
}

func defaults() *Config {
	return &Config{
		DNSDialTimeout:                5 * time.Second,
		DNSMaxRetries:                 1,
		FileMaxRedirects:              10,
		FileValidationCheckHTTPS:      true,
		FileValidationCheckHTTPSFirst: true,
		RandomValueLength:             24,
		RandomValueValidityPeriod:     30,
		WhoisTimeout:                  5 * time.Second,
		EnforceCorroboration:          true,
	}
}

var validate = validator.New()

// New builds a Config from the given options, applied over sensible
// defaults, and validates it via struct tags.
func New(opts ...Option) (*Config, error) {
	c := defaults()
	for _, opt := range opts {
		opt(c)
	}
	if err := validate.Struct(c); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadYAML reads a YAML document from r into a new Config layered over
// defaults. It does not validate the result: the MpicClient option cannot be
// supplied via YAML and must be set afterward by assigning the field
// directly, after which Validate checks the completed Config.
func LoadYAML(r io.Reader) (*Config, error) {
	c := defaults()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, err
	}
	return c, nil
}

// Validate re-runs struct-tag validation against c, useful after
// LoadYAML has been followed by WithMpicClient-style mutation.
func Validate(c *Config) error {
	return validate.Struct(c)
}
