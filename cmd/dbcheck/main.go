package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/hetulpatel/dbcheck/internal/config"
	"github.com/hetulpatel/dbcheck/internal/conversations"
	"github.com/hetulpatel/dbcheck/internal/logging"
	"github.com/hetulpatel/dbcheck/internal/queryrunner"
	"github.com/hetulpatel/dbcheck/internal/storage/postgres"
	"github.com/hetulpatel/dbcheck/internal/storage/sqlite"
)

func main() {
	godotenv.Load()
	logging.InitFromEnv()

	limit := flag.Int("limit", conversations.DefaultLimit, "Number of recent conversations to show")
	flag.Parse()

	os.Exit(run(context.Background(), os.Stdout, *limit))
}

func run(ctx context.Context, out io.Writer, limit int) int {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(out, err)
		return 1
	}
	if limit <= 0 {
		limit = conversations.DefaultLimit
	}

	runner := queryrunner.New(dialerFor(cfg))
	res := runner.Run(ctx, conversations.RecentQuery(cfg.Driver), limit)

	if err := conversations.RenderResult(out, res); err != nil {
		logging.Errorf("[dbcheck] render: %v", err)
		return 1
	}
	if _, failed := res.(queryrunner.Failure); failed {
		return 1
	}
	return 0
}

func dialerFor(cfg config.Connection) queryrunner.DialFunc {
	if cfg.Driver == config.DriverSQLite {
		return sqlite.Dialer(cfg.Path)
	}
	return postgres.Dialer(cfg)
}
