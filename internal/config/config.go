package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Upload backends accepted in UPLOAD_BACKEND.
const (
	UploadBackendCatalog    = "catalog"
	UploadBackendMinio      = "minio"
	UploadBackendCloudinary = "cloudinary"
)

// Config is the complete service configuration
type Config struct {
	App        AppConfig
	Catalog    CatalogConfig
	Upload     UploadConfig
	Minio      MinioConfig
	Cloudinary CloudinaryConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Forms      FormsConfig
}

type AppConfig struct {
	Env  string // development, production
	Port int
}

// Addr returns the listen address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// CatalogConfig points at the catalog REST API (categories, products, upload).
type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

type UploadConfig struct {
	Backend     string
	MaxFileSize int64 // bytes
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PublicURL string // Base URL for stored objects; defaults to the endpoint
}

type CloudinaryConfig struct {
	URL    string
	Folder string
}

// RedisConfig is optional; an empty Addr keeps caches in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWKSURL         string
	ClientID        string
	Issuers         []string
	AdminEmails     []string
	RefreshInterval time.Duration
}

type FormsConfig struct {
	IdleTimeout          time.Duration
	CategoryCacheTTL     time.Duration
	CategoryRefreshEvery time.Duration
}

// Load reads configuration from the environment, optionally overlaid by a config file
// (config.yaml in . or ./config). Environment variables win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("APP_ENV"),
			Port: getInt(v, "PORT"),
		},
		Catalog: CatalogConfig{
			BaseURL: strings.TrimRight(v.GetString("CATALOG_API_URL"), "/"),
			Timeout: time.Duration(getInt(v, "CATALOG_TIMEOUT_SECONDS")) * time.Second,
		},
		Upload: UploadConfig{
			Backend:     strings.ToLower(v.GetString("UPLOAD_BACKEND")),
			MaxFileSize: int64(getInt(v, "UPLOAD_MAX_FILE_MB")) * 1024 * 1024,
		},
		Minio: MinioConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			PublicURL: strings.TrimRight(v.GetString("MINIO_PUBLIC_URL"), "/"),
		},
		Cloudinary: CloudinaryConfig{
			URL:    v.GetString("CLOUDINARY_URL"),
			Folder: v.GetString("CLOUDINARY_FOLDER"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       getInt(v, "REDIS_DB"),
		},
		Auth: AuthConfig{
			JWKSURL:         v.GetString("AUTH_JWKS_URL"),
			ClientID:        v.GetString("AUTH_CLIENT_ID"),
			Issuers:         splitList(v.GetString("AUTH_ISSUERS")),
			AdminEmails:     splitList(strings.ToLower(v.GetString("ADMIN_EMAILS"))),
			RefreshInterval: time.Duration(getInt(v, "AUTH_JWKS_REFRESH_MINUTES")) * time.Minute,
		},
		Forms: FormsConfig{
			IdleTimeout:          time.Duration(getInt(v, "FORM_IDLE_MINUTES")) * time.Minute,
			CategoryCacheTTL:     time.Duration(getInt(v, "CATEGORY_CACHE_TTL_SECONDS")) * time.Second,
			CategoryRefreshEvery: time.Duration(getInt(v, "CATEGORY_REFRESH_MINUTES")) * time.Minute,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", 8080)
	v.SetDefault("CATALOG_API_URL", "http://localhost:3000")
	v.SetDefault("CATALOG_TIMEOUT_SECONDS", 30)
	v.SetDefault("UPLOAD_BACKEND", UploadBackendCatalog)
	v.SetDefault("UPLOAD_MAX_FILE_MB", 5)
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_BUCKET", "product-images")
	v.SetDefault("CLOUDINARY_FOLDER", "products")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("AUTH_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs")
	v.SetDefault("AUTH_ISSUERS", "accounts.google.com,https://accounts.google.com")
	v.SetDefault("AUTH_JWKS_REFRESH_MINUTES", 60)
	v.SetDefault("FORM_IDLE_MINUTES", 30)
	v.SetDefault("CATEGORY_CACHE_TTL_SECONDS", 60)
	v.SetDefault("CATEGORY_REFRESH_MINUTES", 5)
}

func (c *Config) validate() error {
	switch c.Upload.Backend {
	case UploadBackendCatalog, UploadBackendMinio:
	case UploadBackendCloudinary:
		if c.Cloudinary.URL == "" {
			return fmt.Errorf("CLOUDINARY_URL is required for the cloudinary upload backend")
		}
	default:
		return fmt.Errorf("unknown UPLOAD_BACKEND %q", c.Upload.Backend)
	}
	if c.Auth.ClientID == "" {
		return fmt.Errorf("AUTH_CLIENT_ID is required")
	}
	if c.App.Port <= 0 {
		return fmt.Errorf("invalid PORT %d", c.App.Port)
	}
	return nil
}

// getInt tolerates env values that viper hands back as strings.
func getInt(v *viper.Viper, key string) int {
	switch raw := v.Get(key).(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0
		}
		return n
	default:
		return v.GetInt(key)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
