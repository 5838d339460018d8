package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Mail    MailConfig    `yaml:"mail"`
	LLM     LLMConfig     `yaml:"llm"`
	Storage StorageConfig `yaml:"storage"`
	PDF     PDFConfig     `yaml:"pdf"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
	Users   []User        `yaml:"users"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type MailConfig struct {
	APIURL          string `yaml:"api_url"`
	APIKey          string `yaml:"api_key"`
	GrantID         string `yaml:"grant_id"`
	WebhookSecret   string `yaml:"webhook_secret"`
	DownloadWorkers int    `yaml:"download_workers"`
	DownloadTimeout int    `yaml:"download_timeout_seconds"`
}

type LLMConfig struct {
	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	Model    string `yaml:"model"`
}

type StorageConfig struct {
	VendorsRoot string `yaml:"vendors_root"`
	TempRoot    string `yaml:"temp_root"`
}

type PDFConfig struct {
	DPI int `yaml:"dpi"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Secrets may come from the environment instead of the file
	applyEnvOverrides(&cfg)

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "vendor_portal"
	}
	if cfg.Mail.APIURL == "" {
		cfg.Mail.APIURL = "https://api.us.nylas.com"
	}
	if cfg.Mail.DownloadWorkers == 0 {
		cfg.Mail.DownloadWorkers = 3
	}
	if cfg.Mail.DownloadTimeout == 0 {
		cfg.Mail.DownloadTimeout = 30
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.Storage.VendorsRoot == "" {
		cfg.Storage.VendorsRoot = "vendors"
	}
	if cfg.Storage.TempRoot == "" {
		cfg.Storage.TempRoot = "temp_uploads"
	}
	if cfg.PDF.DPI == 0 {
		cfg.PDF.DPI = 300
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("MAIL_API_KEY"); v != "" {
		cfg.Mail.APIKey = v
	}
	if v := os.Getenv("MAIL_GRANT_ID"); v != "" {
		cfg.Mail.GrantID = v
	}
	if v := os.Getenv("MAIL_WEBHOOK_SECRET"); v != "" {
		cfg.Mail.WebhookSecret = v
	}
	if v := os.Getenv("LLM_API_TOKEN"); v != "" {
		cfg.LLM.APIToken = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
