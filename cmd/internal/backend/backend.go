// Package backend opens the spool store selected on the command line.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/velmie/spool"
	"github.com/velmie/spool/memory"
	"github.com/velmie/spool/mongo"
	"github.com/velmie/spool/mysql"
	"github.com/velmie/spool/postgres"
	"github.com/velmie/spool/redis"
	"github.com/velmie/spool/sqlite"
)

// Backend names accepted by Open.
const (
	Memory   = "memory"
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
	Mongo    = "mongo"
	Redis    = "redis"
)

const (
	defaultTable       = "spool"
	defaultMongoDB     = "spool"
	disconnectTimeout  = 10 * time.Second
	envPrefix          = "SPOOL_"
	defaultMaxDBConns  = 8
	defaultIdleDBConns = 4
)

var (
	// ErrDSNRequired is returned when a backend other than memory has no DSN.
	ErrDSNRequired = errors.New("backend: dsn is required")
	// ErrUnsupportedBackend is returned for an unknown backend name.
	ErrUnsupportedBackend = errors.New("backend: unsupported backend")
)

// Options selects and configures a store.
type Options struct {
	Backend      string
	DSN          string
	Table        string
	Database     string
	CreateSchema bool
}

// LoadEnv loads variables from the given dotenv files, or ".env" when none are
// given. Missing files are ignored, variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	return nil
}

// Register binds the options to fs. Defaults come from SPOOL_* environment variables.
func (o *Options) Register(flags *flag.FlagSet) {
	flags.StringVar(&o.Backend, "backend", Env("BACKEND", Memory), "Store backend: memory, mysql, postgres, sqlite, mongo or redis")
	flags.StringVar(&o.DSN, "dsn", Env("DSN", ""), "Backend DSN, URI or sqlite file path")
	flags.StringVar(&o.Table, "table", Env("TABLE", defaultTable), "Table, collection or redis key prefix")
	flags.StringVar(&o.Database, "database", Env("DATABASE", defaultMongoDB), "Mongo database name")
	flags.BoolVar(&o.CreateSchema, "create-schema", EnvBool("CREATE_SCHEMA", false), "Create the table or indexes if missing")
}

// Env returns the SPOOL_<key> environment variable or fallback when it is unset.
func Env(key, fallback string) string {
	if value, ok := os.LookupEnv(envPrefix + key); ok {
		return value
	}

	return fallback
}

// EnvBool is Env for boolean flags, unparsable values use fallback.
func EnvBool(key string, fallback bool) bool {
	switch strings.ToLower(Env(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// EnvDuration is Env for duration flags, unparsable values use fallback.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(Env(key, ""))
	if err != nil {
		return fallback
	}

	return value
}

// Open builds the selected store. The returned closer releases its connections.
func Open(ctx context.Context, o Options) (spool.Store, func() error, error) {
	switch o.Backend {
	case Memory:
		return memory.NewStore(), func() error { return nil }, nil
	case MySQL:
		return openSQL(ctx, o, "mysql", func(db *sql.DB) (spool.Store, error) {
			return mysql.NewStore(db, mysql.WithTable(o.Table))
		}, func() (string, error) {
			return mysql.Schema(mysql.WithTable(o.Table))
		})
	case Postgres:
		return openSQL(ctx, o, "postgres", func(db *sql.DB) (spool.Store, error) {
			return postgres.NewStore(db, postgres.WithTable(o.Table))
		}, func() (string, error) {
			return postgres.Schema(postgres.WithTable(o.Table))
		})
	case SQLite:
		return openSQLite(ctx, o)
	case Mongo:
		return openMongo(ctx, o)
	case Redis:
		return openRedis(ctx, o)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, o.Backend)
	}
}

func openSQL(
	ctx context.Context,
	o Options,
	driver string,
	newStore func(*sql.DB) (spool.Store, error),
	schema func() (string, error),
) (spool.Store, func() error, error) {
	if o.DSN == "" {
		return nil, nil, ErrDSNRequired
	}
	db, err := sql.Open(driver, o.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxDBConns)
	db.SetMaxIdleConns(defaultIdleDBConns)

	store, err := prepareSQL(ctx, db, o, newStore, schema)
	if err != nil {
		return nil, nil, errors.Join(err, db.Close())
	}

	return store, db.Close, nil
}

func openSQLite(ctx context.Context, o Options) (spool.Store, func() error, error) {
	if o.DSN == "" {
		return nil, nil, ErrDSNRequired
	}
	db, err := sqlite.Open(o.DSN)
	if err != nil {
		return nil, nil, err
	}

	store, err := prepareSQL(ctx, db, o, func(db *sql.DB) (spool.Store, error) {
		return sqlite.NewStore(db, sqlite.WithTable(o.Table))
	}, func() (string, error) {
		return sqlite.Schema(sqlite.WithTable(o.Table))
	})
	if err != nil {
		return nil, nil, errors.Join(err, db.Close())
	}

	return store, db.Close, nil
}

func prepareSQL(
	ctx context.Context,
	db *sql.DB,
	o Options,
	newStore func(*sql.DB) (spool.Store, error),
	schema func() (string, error),
) (spool.Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if o.CreateSchema {
		ddl, err := schema()
		if err != nil {
			return nil, err
		}
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return newStore(db)
}

func openMongo(ctx context.Context, o Options) (spool.Store, func() error, error) {
	if o.DSN == "" {
		return nil, nil, ErrDSNRequired
	}
	client, err := mongodriver.Connect(ctx, mongooptions.Client().ApplyURI(o.DSN))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	closer := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()

		return client.Disconnect(ctx)
	}

	store, err := mongo.NewStore(client.Database(o.Database), o.Table)
	if err != nil {
		return nil, nil, errors.Join(err, closer())
	}
	if o.CreateSchema {
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, nil, errors.Join(err, closer())
		}
	}

	return store, closer, nil
}

func openRedis(ctx context.Context, o Options) (spool.Store, func() error, error) {
	if o.DSN == "" {
		return nil, nil, ErrDSNRequired
	}
	opts, err := goredis.ParseURL(o.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, errors.Join(fmt.Errorf("ping redis: %w", err), client.Close())
	}

	store, err := redis.NewStore(client, redis.WithPrefix(o.Table))
	if err != nil {
		return nil, nil, errors.Join(err, client.Close())
	}

	return store, client.Close, nil
}
