package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type HTTPConfig struct {
	Addr            string        `env:"HTTP_SERVER_ADDRESS" env-default:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type AuthConfig struct {
	// VerifyKey is the shared secret a client exchanges for a session token
	// at POST /verify.
	VerifyKey string        `env:"VERIFY_KEY" env-required:"true"`
	JWTSecret string        `env:"JWT_SECRET" env-required:"true"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" env-default:"12h"`
}

type RedisConfig struct {
	// Addr is optional; without it start throttling and device persistence
	// are disabled.
	Addr string `env:"REDIS_ADDR"`
}

type FlowConfig struct {
	DebounceWindow time.Duration `env:"FLOW_DEBOUNCE_WINDOW" env-default:"15s"`
	AnswerWait     time.Duration `env:"FLOW_ANSWER_WAIT" env-default:"30s"`
	WorkerWait     time.Duration `env:"FLOW_WORKER_WAIT" env-default:"10m"`
	SessionTTL     time.Duration `env:"FLOW_SESSION_TTL" env-default:"1h"`
}

type SecurityConfig struct {
	EnableStartThrottle bool          `env:"SECURITY_START_THROTTLE" env-default:"false"`
	EnableIPThrottle    bool          `env:"SECURITY_IP_THROTTLE" env-default:"false"`
	MaxStartAttempts    int           `env:"SECURITY_MAX_START_ATTEMPTS" env-default:"10"`
	StartCooldown       time.Duration `env:"SECURITY_START_COOLDOWN" env-default:"10m"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" env-default:"info"`
}

type DriverConfig struct {
	Name string `env:"DRIVER" env-default:"demo"`
}

type Config struct {
	HTTP     HTTPConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Flow     FlowConfig
	Security SecurityConfig
	Log      LogConfig
	Driver   DriverConfig
}

func MustLoad() *Config {
	path := getConfigPath()
	if path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			panic(fmt.Sprintf("failed to load config file %s: %v", path, err))
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic(fmt.Sprintf("failed to load environment variables: %v", err))
	}

	return &cfg
}

func getConfigPath() string {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return envPath
	}

	var res string
	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	return res
}
