package tls

// Config describes how the admin API serves HTTPS. Explicit cert/key files
// win over Dir; with AutoGenerate a self-signed pair is written to Dir when
// missing.
type Config struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	CertFile     string  `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile      string  `mapstructure:"key_file" yaml:"key_file"`
	Dir          string  `mapstructure:"dir" yaml:"dir"`
	AutoGenerate bool    `mapstructure:"auto_generate" yaml:"auto_generate"`
	MinVersion   string  `mapstructure:"min_version" yaml:"min_version" validate:"omitempty,oneof=default 1.2 1.3 TLS1.2 TLS1.3 tls1.2 tls1.3"`
	MaxVersion   string  `mapstructure:"max_version" yaml:"max_version" validate:"omitempty,oneof=default 1.2 1.3 TLS1.2 TLS1.3 tls1.2 tls1.3"`
	AutoGen      AutoGen `mapstructure:"auto_gen" yaml:"auto_gen"`
}

// AutoGen tunes the generated self-signed certificate.
type AutoGen struct {
	CommonName   string   `mapstructure:"common_name" yaml:"common_name"`
	Organization string   `mapstructure:"organization" yaml:"organization"`
	DNSNames     []string `mapstructure:"dns_names" yaml:"dns_names"`
	IPAddresses  []string `mapstructure:"ip_addresses" yaml:"ip_addresses"`
	ValidDays    int      `mapstructure:"valid_days" yaml:"valid_days"`
}

// Development returns a config that self-signs into certDir.
func Development(certDir string) Config {
	return Config{
		Enabled:      true,
		Dir:          certDir,
		AutoGenerate: true,
		AutoGen: AutoGen{
			CommonName: "localhost",
			DNSNames:   []string{"localhost"},
			ValidDays:  365,
		},
	}
}
