package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains server configuration parameters.
type Config struct {
	LogLevel      int     `env:"LOG_LEVEL" envDefault:"0"`
	SessionSecret string  `env:"SESSION_SECRET,required,notEmpty"`
	StoreURL      string  `env:"STORE_URL" envDefault:"memory://"`
	HTTP          HTTP    `envPrefix:"HTTP_"`
	Dropbox       Dropbox `envPrefix:"DROPBOX_"`
	Sync          Sync    `envPrefix:"SYNC_"`
	Mirror        Mirror  `envPrefix:"MINIO_"`
}

// HTTP contains webhook/OAuth server parameters.
type HTTP struct {
	Address            string `env:"ADDRESS" envDefault:":8080"`
	PublicURL          string `env:"PUBLIC_URL" envDefault:"http://127.0.0.1:8080"`
	EnableHTTPS        bool   `env:"ENABLE_HTTPS" envDefault:"false"`
	CertFileName       string `env:"CERT_FILE_NAME" envDefault:"cert.pem"`
	PrivateKeyFileName string `env:"PRIVATE_KEY_FILE_NAME" envDefault:"key.pem"`
}

// Dropbox contains the app identity and API endpoints.
type Dropbox struct {
	AppKey     string `env:"APP_KEY,required,notEmpty"`
	AppSecret  string `env:"APP_SECRET,required,notEmpty"`
	APIURL     string `env:"API_URL" envDefault:"https://api.dropboxapi.com"`
	ContentURL string `env:"CONTENT_URL" envDefault:"https://content.dropboxapi.com"`
	AuthURL    string `env:"AUTH_URL" envDefault:"https://www.dropbox.com/oauth2/authorize"`
	TokenURL   string `env:"TOKEN_URL" envDefault:"https://api.dropboxapi.com/oauth2/token"`
}

// Sync contains sync engine and dispatcher parameters.
type Sync struct {
	Workers        int           `env:"WORKERS" envDefault:"8"`
	PageTimeout    time.Duration `env:"PAGE_TIMEOUT" envDefault:"30s"`
	MaxRetries     uint64        `env:"MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"200ms"`
	RetryMaxDelay  time.Duration `env:"RETRY_MAX_DELAY" envDefault:"5s"`
	OnStartup      bool          `env:"ON_STARTUP" envDefault:"true"`
}

// Mirror contains optional object storage parameters. An empty endpoint
// disables mirroring.
type Mirror struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"mdpublish-html"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// Enabled reports whether a mirror endpoint is configured.
func (m Mirror) Enabled() bool {
	return m.Endpoint != ""
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Sync.Workers <= 0 {
		return nil, fmt.Errorf("SYNC_WORKERS must be positive, got %d", cfg.Sync.Workers)
	}

	return &cfg, nil
}
