package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/hetulpatel/dbcheck/internal/logging"
	"github.com/hetulpatel/dbcheck/internal/storage/sqlite"
)

func main() {
	godotenv.Load()
	logging.InitFromEnv()

	store, err := sqlite.Open(os.Getenv("SQLITE_PATH"))
	if err != nil {
		logging.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	if err := store.ClearTables(context.Background()); err != nil {
		logging.Fatalf("clear tables: %v", err)
	}
	logging.Infof("conversations table cleared at %s", store.Path())
}
