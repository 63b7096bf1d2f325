package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NeuralTrust/TrustShield/pkg/alert"
	"github.com/NeuralTrust/TrustShield/pkg/behavior"
	"github.com/NeuralTrust/TrustShield/pkg/infra/database"
	"github.com/NeuralTrust/TrustShield/pkg/paymentguard"
	"github.com/NeuralTrust/TrustShield/pkg/penaltybox"
	"github.com/NeuralTrust/TrustShield/pkg/scorer"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig        `mapstructure:"server"`
	Redis      RedisConfig         `mapstructure:"redis"`
	Database   database.Config     `mapstructure:"database"`
	Scorer     scorer.Config       `mapstructure:"scorer"`
	PenaltyBox penaltybox.Config   `mapstructure:"penalty_box"`
	Behavior   behavior.Config     `mapstructure:"behavior"`
	Alerts     AlertsConfig        `mapstructure:"alerts"`
	Reputation ReputationConfig    `mapstructure:"reputation"`
	Payment    paymentguard.Config `mapstructure:"payment"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	AdminToken  string `mapstructure:"admin_token"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type AlertsConfig struct {
	Dispatcher alert.DispatcherConfig `mapstructure:"dispatcher"`
	WebhookURL string                 `mapstructure:"webhook_url"`
	Email      alert.EmailConfig      `mapstructure:"email"`
	Kafka      alert.KafkaConfig      `mapstructure:"kafka"`
	AuditDB    bool                   `mapstructure:"audit_db"`
}

type ReputationConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

var globalConfig Config

func Load(configPath string) error {
	if err := loadConfigFile(configPath, "config", &globalConfig); err != nil {
		return err
	}
	setDefaultValues()
	return validate()
}

func loadConfigFile(configPath, fileName string, out interface{}) error {
	viper.SetConfigName(fileName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
		}
		// No file is fine; environment variables still apply.
	}

	if err := viper.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}
	return nil
}

func setDefaultValues() {
	if globalConfig.Server.Port == 0 {
		globalConfig.Server.Port = 8080
	}
	if globalConfig.Server.MetricsPort == 0 {
		globalConfig.Server.MetricsPort = 9090
	}
	if globalConfig.Redis.Port == 0 {
		globalConfig.Redis.Port = 6379
	}
	if globalConfig.Database.SSLMode == "" {
		globalConfig.Database.SSLMode = "disable"
	}
}

func validate() error {
	if err := globalConfig.PenaltyBox.Validate(); err != nil {
		return fmt.Errorf("penalty_box: %w", err)
	}
	if err := globalConfig.Behavior.Validate(); err != nil {
		return fmt.Errorf("behavior: %w", err)
	}
	return nil
}

func GetConfig() *Config {
	return &globalConfig
}
