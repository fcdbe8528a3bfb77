package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	Port     string `envconfig:"PORT" default:"8002"`
	AppURL   string `envconfig:"APP_URL" default:"http://localhost:5173"`
	LogLevel string `envconfig:"LOG_LEVEL"`

	JWTSecret    string `envconfig:"JWT_SECRET" default:"dev-jwt-secret"`
	TicketSecret string `envconfig:"TICKET_SECRET" default:"dev-ticket-secret"`

	DBDriver   string `envconfig:"DB_DRIVER" default:"postgres"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     uint   `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"cinema_booking"`

	RedisAddr   string `envconfig:"REDIS_ADDR"`
	RabbitMQURL string `envconfig:"RABBITMQ_URL"`
	Exchange    string `envconfig:"RABBITMQ_EXCHANGE" default:"cinema.bookings"`
	MongoURI    string `envconfig:"MONGO_URI"`
	MongoDB     string `envconfig:"MONGO_DB" default:"cinema_reports"`

	PaymentProvider     string `envconfig:"PAYMENT_PROVIDER" default:"stripe"`
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	OmisePublicKey      string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey      string `envconfig:"OMISE_SECRET_KEY"`
	SandboxSecret       string `envconfig:"SANDBOX_WEBHOOK_SECRET" default:"sandbox-secret"`
	Currency            string `envconfig:"CURRENCY" default:"usd"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"no-reply@cinema.local"`

	PaymentTimeout       time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"5m"`
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"30s"`
	LoyaltyCentsPerPoint int64         `envconfig:"LOYALTY_CENTS_PER_POINT" default:"100"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.LoyaltyCentsPerPoint <= 0 {
		return nil, fmt.Errorf("LOYALTY_CENTS_PER_POINT must be positive")
	}
	if cfg.PaymentTimeout <= 0 {
		return nil, fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	return &cfg, nil
}

// Get returns a single environment value after loading .env.
func Get(key string) string {
	_ = godotenv.Load(".env")
	return os.Getenv(key)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}
