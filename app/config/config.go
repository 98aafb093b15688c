package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"PrintStation/app/security"
)

// AppConfig holds all station configuration
type AppConfig struct {
	// Backend database (print queue source of truth)
	Database DatabaseConfig `json:"database"`

	// Tenant / device identity
	Station StationConfig `json:"station"`

	// Print layout and destinations for this device
	Printing PrintingConfig `json:"printing"`

	// Local print-spooling agent session
	Agent AgentConfig `json:"agent"`

	// Realtime push channel
	Realtime RealtimeConfig `json:"realtime"`

	// Tenant print-server lease
	Lease LeaseConfig `json:"lease"`

	// First run flag
	FirstRun bool `json:"first_run"`
}

// DatabaseConfig holds backend database connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
}

// StationConfig identifies this device within the tenant
type StationConfig struct {
	TenantID string `json:"tenant_id"`
	// DeviceName is the human-readable name announced over mDNS
	DeviceName string `json:"device_name"`
	// PrintServer marks this device as the tenant's active print server.
	// Only one device per tenant is expected to set it; the lease (if
	// configured) enforces what this flag only declares.
	PrintServer bool `json:"print_server"`
}

// PaperWidth is the thermal paper size of this device's printers
type PaperWidth string

const (
	Paper58mm PaperWidth = "58mm"
	Paper80mm PaperWidth = "80mm"
)

// PrintingConfig holds per-device print layout settings. Numeric values
// are clamped to non-negative integers on load.
type PrintingConfig struct {
	KitchenPrinter string     `json:"kitchen_printer"`
	CashierPrinter string     `json:"cashier_printer"`
	PaperWidth     PaperWidth `json:"paper_width"`
	FontSize       string     `json:"font_size"` // "normal", "large"
	LineSpacing    int        `json:"line_spacing"`
	LeftMargin     int        `json:"left_margin"`
	TopMargin      int        `json:"top_margin"`
	BottomMargin   int        `json:"bottom_margin"`
	CharSpacing    int        `json:"char_spacing"`
	ASCIIOnly      bool       `json:"ascii_only"`
	AutoCut        bool       `json:"auto_cut"`
	// DuplicateKitchen prints a second copy of every kitchen ticket
	DuplicateKitchen bool `json:"duplicate_kitchen"`
	// OpenDrawerOnReceipt kicks the cash drawer after a fiscal receipt
	OpenDrawerOnReceipt bool `json:"open_drawer_on_receipt"`
	// LogoMode selects the bitmap conversion: "original", "greyscale", "dithered"
	LogoMode string `json:"logo_mode"`
	// LogoMaxWidth caps the logo in printer dots (0 = paper dot width)
	LogoMaxWidth int `json:"logo_max_width"`
	// FallbackPrint enables the HTML/system-spooler path when the agent fails
	FallbackPrint bool `json:"fallback_print"`
	// FallbackPrinter is the CUPS destination for fallback output ("" = system default)
	FallbackPrinter string `json:"fallback_printer"`
}

// AgentConfig holds the local print-spooling agent session settings
type AgentConfig struct {
	// URL of the agent's local WebSocket endpoint
	URL string `json:"url"`
	// SigningURL is the server-side endpoint that holds the private key
	// and signs the agent's per-request challenges
	SigningURL string `json:"signing_url"`
	// SigningToken is the bearer token for the signing endpoint (encrypted at rest)
	SigningToken string `json:"signing_token"`
	// SubmitTimeoutSeconds bounds each print submission (0 = default 30s)
	SubmitTimeoutSeconds int `json:"submit_timeout_seconds"`
}

// RealtimeConfig holds the push channel settings
type RealtimeConfig struct {
	NatsURL string `json:"nats_url"`
}

// LeaseConfig holds the optional tenant print-server lease settings.
// An empty RedisAddr disables the lease; exclusivity is then only the
// PrintServer flag's convention and delivery is at-least-once, possibly
// more than once across devices.
type LeaseConfig struct {
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	TTLSeconds    int    `json:"ttl_seconds"`
	// UnknownTypeTTLHours is how long an unrecognized print_type stays
	// pending before being failed as unsupported (0 = default 24h)
	UnknownTypeTTLHours int `json:"unknown_type_ttl_hours"`
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		appData = filepath.Join(homeDir, ".config")
	}

	configDir := filepath.Join(appData, "PrintStation")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.json"), nil
}

// LoadConfig loads configuration from config.json and decrypts sensitive fields
func LoadConfig() (*AppConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	if err := cfg.decryptSensitiveFields(); err != nil {
		return nil, fmt.Errorf("could not decrypt sensitive fields: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// SaveConfig saves configuration to config.json after encrypting sensitive fields
func SaveConfig(cfg *AppConfig) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	// Encrypt a copy so the caller's config stays usable
	cfgCopy := *cfg
	if err := cfgCopy.encryptSensitiveFields(); err != nil {
		return fmt.Errorf("could not encrypt sensitive fields: %w", err)
	}

	data, err := json.MarshalIndent(&cfgCopy, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}

	return nil
}

// ConfigExists checks if config file exists
func ConfigExists() (bool, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(configPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// CreateDefaultConfig creates a default configuration file
func CreateDefaultConfig() (*AppConfig, error) {
	cfg := &AppConfig{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "pos_backend",
			Username: "postgres",
			Password: "",
			SSLMode:  "disable",
		},
		Station: StationConfig{
			DeviceName:  "Print Station",
			PrintServer: false,
		},
		Printing: PrintingConfig{
			PaperWidth:    Paper80mm,
			FontSize:      "normal",
			AutoCut:       true,
			LogoMode:      "dithered",
			FallbackPrint: true,
		},
		Agent: AgentConfig{
			URL: "ws://localhost:8182",
		},
		Realtime: RealtimeConfig{
			NatsURL: "nats://localhost:4222",
		},
		FirstRun: true,
	}
	cfg.ApplyDefaults()

	if err := SaveConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MarkSetupComplete marks the first run as complete
func MarkSetupComplete() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	cfg.FirstRun = false
	return SaveConfig(cfg)
}

// ApplyDefaults fills absent values and clamps numeric print settings.
func (cfg *AppConfig) ApplyDefaults() {
	if cfg.Printing.PaperWidth != Paper58mm && cfg.Printing.PaperWidth != Paper80mm {
		cfg.Printing.PaperWidth = Paper80mm
	}
	if cfg.Printing.FontSize != "normal" && cfg.Printing.FontSize != "large" {
		cfg.Printing.FontSize = "normal"
	}
	switch cfg.Printing.LogoMode {
	case "original", "greyscale", "dithered":
	default:
		cfg.Printing.LogoMode = "dithered"
	}
	cfg.Printing.LineSpacing = clampNonNegative(cfg.Printing.LineSpacing)
	cfg.Printing.LeftMargin = clampNonNegative(cfg.Printing.LeftMargin)
	cfg.Printing.TopMargin = clampNonNegative(cfg.Printing.TopMargin)
	cfg.Printing.BottomMargin = clampNonNegative(cfg.Printing.BottomMargin)
	cfg.Printing.CharSpacing = clampNonNegative(cfg.Printing.CharSpacing)
	cfg.Printing.LogoMaxWidth = clampNonNegative(cfg.Printing.LogoMaxWidth)

	if cfg.Agent.SubmitTimeoutSeconds <= 0 {
		cfg.Agent.SubmitTimeoutSeconds = 30
	}
	if cfg.Lease.TTLSeconds <= 0 {
		cfg.Lease.TTLSeconds = 15
	}
	if cfg.Lease.UnknownTypeTTLHours <= 0 {
		cfg.Lease.UnknownTypeTTLHours = 24
	}
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// encryptSensitiveFields encrypts sensitive configuration fields
func (cfg *AppConfig) encryptSensitiveFields() error {
	var err error

	if cfg.Database.Password != "" {
		cfg.Database.Password, err = security.Encrypt(cfg.Database.Password)
		if err != nil {
			return fmt.Errorf("could not encrypt database password: %w", err)
		}
	}

	if cfg.Agent.SigningToken != "" {
		cfg.Agent.SigningToken, err = security.Encrypt(cfg.Agent.SigningToken)
		if err != nil {
			return fmt.Errorf("could not encrypt agent signing token: %w", err)
		}
	}

	if cfg.Lease.RedisPassword != "" {
		cfg.Lease.RedisPassword, err = security.Encrypt(cfg.Lease.RedisPassword)
		if err != nil {
			return fmt.Errorf("could not encrypt redis password: %w", err)
		}
	}

	return nil
}

// decryptSensitiveFields decrypts sensitive configuration fields.
// If a field is not encrypted (plain text), it leaves it as-is (useful for development)
func (cfg *AppConfig) decryptSensitiveFields() error {
	if cfg.Database.Password != "" {
		decrypted, err := security.Decrypt(cfg.Database.Password)
		if err != nil {
			decrypted = cfg.Database.Password
		}
		cfg.Database.Password = decrypted
	}

	if cfg.Agent.SigningToken != "" {
		decrypted, err := security.Decrypt(cfg.Agent.SigningToken)
		if err != nil {
			decrypted = cfg.Agent.SigningToken
		}
		cfg.Agent.SigningToken = decrypted
	}

	if cfg.Lease.RedisPassword != "" {
		decrypted, err := security.Decrypt(cfg.Lease.RedisPassword)
		if err != nil {
			decrypted = cfg.Lease.RedisPassword
		}
		cfg.Lease.RedisPassword = decrypted
	}

	return nil
}
