package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"github.com/KurtChenkoyu/lexicraft/internal/assign"
	"github.com/KurtChenkoyu/lexicraft/internal/db"
	"github.com/KurtChenkoyu/lexicraft/internal/handler"
	"github.com/KurtChenkoyu/lexicraft/internal/middleware"
	"github.com/KurtChenkoyu/lexicraft/internal/review"
	"github.com/KurtChenkoyu/lexicraft/internal/srs"
)

type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port" validate:"required"`
	DBPath       string `yaml:"db_path" validate:"required"`
	JWTSecretKey string `yaml:"jwt_secret_key" validate:"required"`

	Scheduling SchedulingConfig `yaml:"scheduling"`
}

type SchedulingConfig struct {
	Params      srs.Params           `yaml:"params"`
	Thresholds  srs.RatingThresholds `yaml:"rating_thresholds"`
	Assignment  assign.Config        `yaml:"assignment"`
	LockTimeout time.Duration        `yaml:"lock_timeout"`
}

func ReadConfig(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills in scheduling tunables the config file left at zero.
func applyDefaults(cfg *Config) {
	if cfg.Scheduling.Params.MaxIntervalDays == 0 {
		cfg.Scheduling.Params = srs.DefaultParams()
	}
	if cfg.Scheduling.Thresholds.IncorrectSlowMs == 0 {
		cfg.Scheduling.Thresholds = srs.DefaultRatingThresholds()
	}
	if cfg.Scheduling.Assignment.MigrationThreshold == 0 {
		cfg.Scheduling.Assignment = assign.DefaultConfig()
	}
	if cfg.Scheduling.LockTimeout == 0 {
		cfg.Scheduling.LockTimeout = review.DefaultConfig().LockTimeout
	}
}

func ValidateConfig(cfg *Config) error {
	validate := validator.New()
	return validate.Struct(cfg)
}

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func main() {
	configFilePath := "config.yml"
	if env := os.Getenv("CONFIG_FILE_PATH"); env != "" {
		configFilePath = env
	}

	cfg, err := ReadConfig(configFilePath)
	if err != nil {
		log.Fatalf("error reading configuration: %v", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	dbStorage, err := db.ConnectDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := dbStorage.UpdateSchema(); err != nil {
		log.Fatalf("Failed to update schema: %v", err)
	}

	logr := slog.New(slog.NewTextHandler(os.Stdout, nil))

	assigner := assign.New(dbStorage, cfg.Scheduling.Assignment, logr,
		rand.NewSource(time.Now().UnixNano()))

	pipeline := review.New(dbStorage, assigner, review.Config{
		Params:         cfg.Scheduling.Params,
		Thresholds:     cfg.Scheduling.Thresholds,
		LockTimeout:    cfg.Scheduling.LockTimeout,
		SeedMinReviews: review.DefaultConfig().SeedMinReviews,
	}, logr)

	h := handler.New(dbStorage, pipeline, assigner, cfg.JWTSecretKey)

	e := echo.New()
	middleware.Setup(e, logr)
	e.Validator = &CustomValidator{validator: validator.New()}
	h.RegisterRoutes(e)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		logr.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-quit
	logr.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}

	if err := dbStorage.Close(); err != nil {
		logr.Error("closing database", "err", err)
	}

	logr.Info("server stopped")
}
