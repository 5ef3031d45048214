package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/hetulpatel/dbcheck/internal/conversations"
	"github.com/hetulpatel/dbcheck/internal/logging"
	"github.com/hetulpatel/dbcheck/internal/storage/sqlite"
)

// Loads conversations from a JSON array into the local SQLite database:
// [{"user_id": "...", "stage": "...", "history": [{"role": "user", "content": "..."}], "updated_at": "RFC3339"}]
func main() {
	godotenv.Load()
	logging.InitFromEnv()
	file := flag.String("file", "", "JSON file with conversations to load")
	flag.Parse()

	if *file == "" {
		logging.Fatalf("Please provide a JSON file using -file")
	}
	raw, err := os.ReadFile(*file)
	if err != nil {
		logging.Fatalf("read %s: %v", *file, err)
	}
	var convs []conversations.Conversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		logging.Fatalf("decode %s: %v", *file, err)
	}

	store, err := sqlite.Open(os.Getenv("SQLITE_PATH"))
	if err != nil {
		logging.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateTables(ctx); err != nil {
		logging.Fatalf("create tables: %v", err)
	}
	if err := store.UpsertConversations(ctx, convs); err != nil {
		logging.Fatalf("seed: %v", err)
	}
	logging.Infof("loaded %d conversations into %s", len(convs), store.Path())
}
