// Package cli implements the creditsctl commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xraph/credits"
	"github.com/xraph/credits/lock/redislock"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/factory"
)

// Environment variables consulted when the matching flag is not set.
const (
	envDriver    = "CREDITS_DRIVER"
	envDSN       = "CREDITS_DSN"
	envDatabase  = "CREDITS_DATABASE"
	envRedisAddr = "CREDITS_REDIS_ADDR"
)

// options are the persistent connection flags shared by every command.
type options struct {
	envFile   string
	driver    string
	dsn       string
	database  string
	redisAddr string
	verbose   bool
}

// NewRootCmd creates the root cobra command for creditsctl.
func NewRootCmd(version string) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "creditsctl",
		Short:         "Administer a credit ledger",
		Long:          "creditsctl migrates a credit ledger store, opens accounts, moves credits and inspects balances.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading CREDITS_* variables")
	flags.StringVar(&opts.driver, "driver", "", "store driver: memory, postgres, sqlite or mongo ($"+envDriver+")")
	flags.StringVar(&opts.dsn, "dsn", "", "store address ($"+envDSN+")")
	flags.StringVar(&opts.database, "database", "credits", "mongo database name ($"+envDatabase+")")
	flags.StringVar(&opts.redisAddr, "redis-addr", "", "redis address for the distributed organization lock ($"+envRedisAddr+")")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log ledger operations to stderr")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newOpenAccountCmd(opts))
	root.AddCommand(newSubscribeCmd(opts))
	root.AddCommand(newFillCmd(opts))
	root.AddCommand(newWithdrawCmd(opts))
	root.AddCommand(newBalanceCmd(opts))
	root.AddCommand(newTransactionsCmd(opts))

	return root
}

// resolve loads the dotenv file and fills unset flags from the environment.
func (o *options) resolve(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	flags := cmd.Flags()
	fromEnv := func(flag, env string, dst *string) {
		if !flags.Changed(flag) {
			if v, ok := os.LookupEnv(env); ok {
				*dst = v
			}
		}
	}
	fromEnv("driver", envDriver, &o.driver)
	fromEnv("dsn", envDSN, &o.dsn)
	fromEnv("database", envDatabase, &o.database)
	fromEnv("redis-addr", envRedisAddr, &o.redisAddr)
	return nil
}

// session is an opened store and the ledger over it.
type session struct {
	store  store.Store
	ledger *credits.Ledger
	redis  *redis.Client
}

func (o *options) open(ctx context.Context, cmd *cobra.Command) (*session, error) {
	s, err := factory.Open(ctx, factory.Config{
		Driver:   factory.Driver(o.driver),
		DSN:      o.dsn,
		Database: o.database,
	})
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelInfo
	}
	ledgerOpts := []credits.Option{
		credits.WithLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))),
	}

	sess := &session{store: s}
	if o.redisAddr != "" {
		sess.redis = redis.NewClient(&redis.Options{Addr: o.redisAddr})
		lk, err := redislock.New(sess.redis)
		if err != nil {
			_ = sess.close()
			return nil, err
		}
		ledgerOpts = append(ledgerOpts, credits.WithLocker(lk))
	}

	sess.ledger = credits.New(s, ledgerOpts...)
	return sess, nil
}

func (s *session) close() error {
	err := s.store.Close()
	if s.redis != nil {
		err = errors.Join(err, s.redis.Close())
	}
	return err
}

// withSession opens a session for the duration of fn.
func (o *options) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := o.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.close())
	}()
	return fn(ctx, s)
}
