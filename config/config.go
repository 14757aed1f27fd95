package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

// Settings drives app.New. Every field can be set from the environment.
type Settings struct {
	// admin (control plane) database; enables the db data source provider and collection store
	DatabaseUrl        string        `envconfig:"DATABASE_URL"`
	DataSourceProvider string        `envconfig:"DATASOURCE_PROVIDER"`
	CollectionStore    string        `envconfig:"COLLECTION_STORE" default:"memory"`
	StrictSchema       bool          `envconfig:"SCHEMA_STRICT" default:"false"`
	DefaultIdType      string        `envconfig:"DEFAULT_ID_TYPE" default:"serial"`
	DefaultPrefix      string        `envconfig:"DEFAULT_TABLE_PREFIX" default:"santoki_"`
	ConnectTimeout     time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`
	MaxOpenConns       int           `envconfig:"POOL_MAX_OPEN_CONNS" default:"10"`
	ColumnCacheTTL     time.Duration `envconfig:"COLUMN_CACHE_TTL" default:"10m"`
	// local or redis://..., broadcasts table changes between instances
	SchemaEvents       string        `envconfig:"SCHEMA_EVENTS"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"info"`
}

func Load(cfg any) {
	if err := LoadE(cfg); err != nil {
		log.Fatal(err)
	}
}

func LoadE(cfg any) error {
	env := os.Getenv("ENV")
	if env != "production" && env != "prod" {
		err := godotenv.Load(".env")
		if err != nil {
			log.Debugf("unable to load .env file: %v", err)
		}
	}
	return envconfig.Process("", cfg)
}

// Defaults returns Settings populated with the default tag values only.
func Defaults() Settings {
	var s Settings
	s.CollectionStore = "memory"
	s.DefaultIdType = "serial"
	s.DefaultPrefix = "santoki_"
	s.ConnectTimeout = 10 * time.Second
	s.MaxOpenConns = 10
	s.ColumnCacheTTL = 10 * time.Minute
	s.LogLevel = "info"
	return s
}
