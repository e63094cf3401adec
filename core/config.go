package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string
		Build    string
		WorkDir  string

		AppName                string
		SecretKey              string
		FrontendBaseURL        string
		StudentDefaultPassword string
		RollbarToken           string
		SendgridApiKey         string

		defaultFromEmail string

		Server   serverConfig
		Database dbConfig
		Redis    redisConfig
		AI       aiConfig
	}

	serverConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		MaxUploadSize             int64 // bytes
	}

	dbConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	redisConfig struct {
		Address   string
		Password  string
		DB        int
		WizardTTL time.Duration
	}

	aiConfig struct {
		Provider       string // gemini | openai
		Model          string
		GeminiAPIKey   string
		OpenAIAPIKey   string
		OpenAIBaseURL  string
		Timeout        time.Duration
		MaxConcurrency int
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

func (db dbConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// NewConfig loads the configuration for the environment named by $ENV (DEV, TEST, QA or PROD).
// Values are read from $<ENV>_<KEY> variables, optionally provided by config/.env.<env>.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	setDefaults(v, env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Debug:    v.GetBool("debug"),
		TestMode: env == "TEST",
		Env:      env,
		Build:    v.GetString("build"),
		WorkDir:  wd,

		AppName:                v.GetString("app.name"),
		SecretKey:              v.GetString("secret.key"),
		FrontendBaseURL:        v.GetString("frontend.url"),
		StudentDefaultPassword: v.GetString("student.default.password"),
		RollbarToken:           v.GetString("rollbar.token"),
		SendgridApiKey:         v.GetString("sendgrid.api.key"),
		defaultFromEmail:       v.GetString("default.from.email"),

		Server: serverConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debug.host"),
			ShutdownTimeout:           v.GetDuration("server.shutdown.timeout"),
			JWTExpirationDelta:        v.GetDuration("jwt.expiration.delta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwt.refresh.expiration.delta"),
			PasswordResetTimeoutDelta: v.GetDuration("password.reset.timeout.delta"),
			MaxUploadSize:             v.GetInt64("server.max.upload.size"),
		},
		Database: dbConfig{
			Engine:        v.GetString("db.engine"),
			Host:          v.GetString("db.host"),
			Port:          v.GetInt("db.port"),
			Name:          v.GetString("db.name"),
			User:          v.GetString("db.user"),
			Password:      v.GetString("db.password"),
			AdminUser:     v.GetString("db.admin.user"),
			AdminPassword: v.GetString("db.admin.password"),
			DisableTLS:    v.GetBool("db.disable.tls"),
		},
		Redis: redisConfig{
			Address:   v.GetString("redis.address"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			WizardTTL: v.GetDuration("redis.wizard.ttl"),
		},
		AI: aiConfig{
			Provider:       strings.ToLower(v.GetString("ai.provider")),
			Model:          v.GetString("ai.model"),
			GeminiAPIKey:   v.GetString("gemini.api.key"),
			OpenAIAPIKey:   v.GetString("openai.api.key"),
			OpenAIBaseURL:  v.GetString("openai.base.url"),
			Timeout:        v.GetDuration("ai.timeout"),
			MaxConcurrency: v.GetInt("ai.max.concurrency"),
		},
	}

	if !(conf.Debug || conf.TestMode) {
		if err := conf.check(); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	return conf
}

// check makes sure that secrets have been provided outside of local environments.
func (c *Config) check() error {
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.SecretKey, "SECRET_KEY"),
		vala.StringNotEmpty(c.Database.Password, "DB_PASSWORD"),
		vala.StringNotEmpty(c.SendgridApiKey, "SENDGRID_API_KEY"),
		vala.StringNotEmpty(c.RollbarToken, "ROLLBAR_TOKEN"),
		vala.StringNotEmpty(c.StudentDefaultPassword, "STUDENT_DEFAULT_PASSWORD"),
	).Check()
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", env == "DEV")
	v.SetDefault("build", "develop")
	v.SetDefault("app.name", "ClassNote")
	v.SetDefault("secret.key", "ki3#m@x9-7!pq2r_l0c4l-s3cr3t-z8v(n)w5y^u1t&e6")
	v.SetDefault("frontend.url", "http://localhost:3000")
	v.SetDefault("student.default.password", "Cn-student#2026")
	v.SetDefault("default.from.email", "ClassNote <noreply@localhost>")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debug.host", "0.0.0.0:4000")
	v.SetDefault("server.shutdown.timeout", 5*time.Second)
	v.SetDefault("server.max.upload.size", int64(10<<20))
	v.SetDefault("jwt.expiration.delta", 7*24*time.Hour)
	v.SetDefault("jwt.refresh.expiration.delta", 4*time.Hour)
	v.SetDefault("password.reset.timeout.delta", 3*24*time.Hour)

	v.SetDefault("db.engine", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "classnote")
	v.SetDefault("db.user", "classnote")
	v.SetDefault("db.password", "")
	v.SetDefault("db.admin.user", "postgres")
	v.SetDefault("db.admin.password", "")
	v.SetDefault("db.disable.tls", env == "DEV" || env == "TEST")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.wizard.ttl", 6*time.Hour)

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "")
	v.SetDefault("gemini.api.key", "")
	v.SetDefault("openai.api.key", "")
	v.SetDefault("openai.base.url", "https://api.openai.com/v1")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.max.concurrency", 4)
}

// NewTestConfig returns a Config suitable for unit tests: no files and no environment lookups.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v, "TEST")
	return &Config{
		TestMode:               true,
		Env:                    "TEST",
		Build:                  "test",
		AppName:                v.GetString("app.name"),
		SecretKey:              "test-secret",
		FrontendBaseURL:        v.GetString("frontend.url"),
		StudentDefaultPassword: v.GetString("student.default.password"),
		defaultFromEmail:       v.GetString("default.from.email"),
		Server: serverConfig{
			ShutdownTimeout:           v.GetDuration("server.shutdown.timeout"),
			JWTExpirationDelta:        v.GetDuration("jwt.expiration.delta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwt.refresh.expiration.delta"),
			PasswordResetTimeoutDelta: v.GetDuration("password.reset.timeout.delta"),
			MaxUploadSize:             v.GetInt64("server.max.upload.size"),
		},
		Redis: redisConfig{WizardTTL: v.GetDuration("redis.wizard.ttl")},
		AI: aiConfig{
			Provider:       v.GetString("ai.provider"),
			Timeout:        v.GetDuration("ai.timeout"),
			MaxConcurrency: v.GetInt("ai.max.concurrency"),
		},
	}
}
