package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"local"`
	FileServer FileServer `yaml:"fileserver"`
	Worker     Worker     `yaml:"worker"`
	Broker     Broker     `yaml:"broker"`
	DB         DB         `yaml:"db"`
}

type FileServer struct {
	Address     string        `yaml:"address" env:"FILESERVER_ADDRESS" env-default:"0.0.0.0:5000"`
	RootPath    string        `yaml:"root_path" env:"ROOT_PATH" env-default:"./shared_data"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"120s"`
}

type Worker struct {
	GatewayURL      string        `yaml:"gateway_url" env:"GATEWAY_URL" env-default:"http://localhost:5000"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT_SECONDS" env-default:"10s"`
	MaxRetries      int           `yaml:"max_retries" env:"MAX_RETRIES" env-default:"3"`
	Count           int           `yaml:"count" env:"WORKER_COUNT" env-default:"4"`
	MaxRequeue      int           `yaml:"max_requeue" env:"MAX_REQUEUE" env-default:"2"`
	SheetPolicy     string        `yaml:"sheet_policy" env:"SHEET_POLICY" env-default:"all"`
	RequiredColumns []string      `yaml:"required_columns" env:"REQUIRED_COLUMNS" env-separator:","`
}

type Broker struct {
	URL       string `yaml:"url" env:"BROKER_URL" env-default:"redis://localhost:6379/0"`
	QueueName string `yaml:"queue_name" env:"QUEUE_NAME" env-default:"sharebridge:work"`
}

type DB struct {
	DSN string `yaml:"dsn" env:"DB_URL"`
}

func MustLoad() *Config {
	// .env is optional, mirrors the docker-compose setup where each
	// service gets its settings injected through the environment.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/local.yaml"
	}

	var config Config
	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &config); err != nil {
			log.Fatalf("cannot read config %s: %v", configPath, err)
		}
		return &config
	}

	if err := cleanenv.ReadEnv(&config); err != nil {
		log.Fatalf("cannot read config from environment: %v", err)
	}
	return &config
}
