package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type RatesConfig struct {
	Env              string `yaml:"env" env-default:"local"`
	HTTPServer       `yaml:"http_server"`
	LogConfig        `yaml:"log_config"`
	CacheConfig      `yaml:"cache"`
	CircuitBreaker   `yaml:"circuit_breaker"`
	AggregatorConfig `yaml:"aggregator"`
	RapiraService    `yaml:"rapira-service"`
	APILayerService  `yaml:"apilayer-service"`
	KafkaService     `yaml:"kafka-service"`
	PreloadConfig    `yaml:"preload"`
}

type HTTPServer struct {
	Host string `yaml:"host" env-default:"0.0.0.0"`
	Port string `yaml:"port" env-default:"8080"`
}

type LogConfig struct {
	LogLevel  string `yaml:"log_level" env-default:"info"`
	LogFormat string `yaml:"log_format" env-default:"json"`
	LogOutput string `yaml:"log_output" env-default:"stdout"`
}

type CacheConfig struct {
	MaxSize       int           `yaml:"max_size" env-default:"100"`
	TTL           time.Duration `yaml:"ttl" env-default:"300s"`
	FiatTTL       time.Duration `yaml:"fiat_ttl" env-default:"600s"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"60s"`
}

type CircuitBreaker struct {
	FailureThreshold int           `yaml:"failure_threshold" env-default:"5"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" env-default:"60s"`
}

type AggregatorConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout" env-default:"5s"`
	BatchTimeout time.Duration `yaml:"batch_timeout" env-default:"10s"`
}

type RapiraService struct {
	BaseURL    string        `yaml:"base_url" env-default:"https://api.rapira.net"`
	Timeout    time.Duration `yaml:"timeout" env-default:"5s"`
	PlateDepth int           `yaml:"plate_depth" env-default:"5"`
}

type APILayerService struct {
	BaseURL     string        `yaml:"base_url" env-default:"https://api.apilayer.com/exchangerates_data"`
	APIKey      string        `yaml:"api_key" env:"APILAYER_API_KEY"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	MinInterval time.Duration `yaml:"min_interval" env-default:"1s"`
}

type KafkaService struct {
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
	Topic   string `yaml:"topic" env-default:"rate-events"`
	Enabled bool   `yaml:"enabled"`
}

type PreloadConfig struct {
	Disabled bool `yaml:"disabled"`
}

func MustLoad() *RatesConfig {

	// Processing env config variable and file
	configPath := os.Getenv("RATES_CONFIG_PATH")

	if configPath == "" {
		log.Fatalf("RATES_CONFIG_PATH was not found\n")
	}

	if _, err := os.Stat(configPath); err != nil {
		log.Fatalf("failed to find config file: %v\n", err)
	}

	// YAML to struct object
	var cfg RatesConfig
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	return &cfg
}
