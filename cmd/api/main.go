package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"bixquest/internal/api/handler"
	"bixquest/internal/datastore"
	"bixquest/internal/models"
	"bixquest/internal/interfaces"
	"bixquest/internal/pkg/caching"
	"bixquest/internal/pkg/limiter"
	"bixquest/internal/services"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/hiendaovinh/toolkit/pkg/db"
	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func init() {
	// for development
	//nolint:errcheck
	godotenv.Load("../../.env")

	// for production
	//nolint:errcheck
	godotenv.Load("./.env")
}

func main() {
	vs, err := env.EnvsRequired(
		"DB_DSN",
		"AUTH_VERIFY_URL",
		"REDIS_CACHE",
		"REDIS_MUTEX",
	)
	if err != nil {
		log.Fatal(err)
	}

	container := NewContainer(vs)

	app := &cli.App{
		Name: "api",
		Commands: []*cli.Command{
			commandServer(container),
			commandMigrate(container),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandServer(container *do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "start the web server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "0.0.0.0:8080",
				Usage: "serve address",
			},
		},
		Action: func(c *cli.Context) error {
			vs := do.MustInvokeNamed[map[string]string](container, "envs")
			router, err := handler.New(&handler.Config{
				Container: container,
				Mode:      vs["API_MODE"],
			})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:    c.String("addr"),
				Handler: router,
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errWg, errCtx := errgroup.WithContext(ctx)

			errWg.Go(func() error {
				log.Printf("ListenAndServe: %s (%s)\n", c.String("addr"), vs["API_MODE"])
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})

			errWg.Go(func() error {
				<-errCtx.Done()
				return srv.Shutdown(context.TODO())
			})

			return errWg.Wait()
		},
	}
}

func commandMigrate(container *do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create missing tables and indexes",
		Action: func(c *cli.Context) error {
			postgresDB, err := do.Invoke[*bun.DB](container)
			if err != nil {
				return err
			}
			if err := datastore.CreateTables(c.Context, postgresDB); err != nil {
				return err
			}
			return seedConfig(c.Context, postgresDB)
		},
	}
}

func seedConfig(ctx context.Context, postgresDB *bun.DB) error {
	seeds := []models.Config{
		{Key: services.CONFIG_CHECKIN_BASE_REWARD, Value: strconv.Itoa(services.CHECKIN_BASE_REWARD_DEFAULT)},
		{Key: services.CONFIG_QUIZ_REWARD_PER_ANSWER, Value: strconv.Itoa(services.QUIZ_REWARD_PER_ANSWER_DEFAULT)},
		{Key: services.CONFIG_GENERAL_CODE_REWARD, Value: strconv.Itoa(services.GENERAL_CODE_REWARD_DEFAULT)},
		{Key: services.CONFIG_REFERRAL_SIGNUP_BONUS, Value: strconv.Itoa(services.REFERRAL_SIGNUP_BONUS_DEFAULT)},
		{Key: services.CONFIG_REFERRER_BONUS, Value: strconv.Itoa(services.REFERRER_BONUS_DEFAULT)},
		{Key: services.CONFIG_HISTORY_PAGE_LIMIT, Value: strconv.Itoa(services.HISTORY_PAGE_LIMIT_DEFAULT)},
	}
	for _, seed := range seeds {
		if err := datastore.InsertConfig(ctx, postgresDB, seed); err != nil {
			return err
		}
	}
	return nil
}

func NewContainer(vs map[string]string) *do.Injector {
	injector := do.New()
	vs["API_MODE"] = os.Getenv("API_MODE")
	if vs["API_MODE"] == "" {
		vs["API_MODE"] = services.SERVER_MODE_PRODUCTION
	}

	do.ProvideNamedValue(injector, "envs", vs)

	do.Provide(injector, func(i *do.Injector) (*bun.DB, error) {
		sqldb := sql.OpenDB(pgdriver.NewConnector(
			pgdriver.WithDSN(os.Getenv("DB_DSN")),
		))

		return bun.NewDB(sqldb, pgdialect.New()), nil
	})

	do.ProvideNamed(injector, "db-readonly", func(i *do.Injector) (*bun.DB, error) {
		dsn := os.Getenv("DB_DSN_READONLY")
		if dsn == "" {
			dsn = os.Getenv("DB_DSN")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(
			pgdriver.WithDSN(dsn),
		))

		return bun.NewDB(sqldb, pgdialect.New()), nil
	})

	do.ProvideNamed(injector, "redis-cache", func(i *do.Injector) (redis.UniversalClient, error) {
		return db.InitRedis(&db.RedisConfig{
			URL: os.Getenv("REDIS_CACHE"),
		})
	})

	do.ProvideNamed(injector, "redis-mutex", func(i *do.Injector) (redis.UniversalClient, error) {
		return db.InitRedis(&db.RedisConfig{
			URL: os.Getenv("REDIS_MUTEX"),
		})
	})

	do.Provide(injector, func(i *do.Injector) (caching.Cache, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-cache")
		if err != nil {
			return nil, err
		}

		return caching.NewCacheRedis(dbRedis, false)
	})

	do.Provide(injector, func(i *do.Injector) (caching.ReadOnlyCache, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-cache")
		if err != nil {
			return nil, err
		}

		return caching.NewCacheRedis(dbRedis, false)
	})

	// quotas fall back to a process-local window unless a dedicated
	// limiter redis is configured
	do.Provide(injector, func(i *do.Injector) (interfaces.Limiter, error) {
		if os.Getenv("REDIS_LIMITER") == "" {
			return limiter.NewMemory(), nil
		}

		dbRedis, err := db.InitRedis(&db.RedisConfig{
			URL: os.Getenv("REDIS_LIMITER"),
		})
		if err != nil {
			return nil, err
		}
		return limiter.NewRedis(dbRedis)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.FailureTracker, error) {
		return limiter.NewLockout(), nil
	})

	do.Provide(injector, func(i *do.Injector) (*redsync.Redsync, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-mutex")
		if err != nil {
			return nil, err
		}

		pool := goredis.NewPool(dbRedis)
		return redsync.New(pool), nil
	})

	do.Provide(injector, func(i *do.Injector) (*services.Authentication, error) {
		return services.NewAuthentication(vs["AUTH_VERIFY_URL"])
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceConfig, error) {
		return services.NewServiceConfig(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceMetrics, error) {
		return services.NewServiceMetrics(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceLedger, error) {
		return services.NewServiceLedger(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceFraud, error) {
		return services.NewServiceFraud(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceUser, error) {
		return services.NewServiceUser(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceTask, error) {
		return services.NewServiceTask(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceCode, error) {
		return services.NewServiceCode(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceQuiz, error) {
		return services.NewServiceQuiz(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceCheckin, error) {
		return services.NewServiceCheckin(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceWheel, error) {
		return services.NewServiceWheel(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceReferral, error) {
		return services.NewServiceReferral(injector)
	})

	return injector
}
