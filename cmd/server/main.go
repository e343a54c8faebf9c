/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the hours-registry engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create the control-schedule client
  4. Create API handler (warms tracked state from persisted baselines)
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: hours.db)
              Use ":memory:" for an in-memory database
  -api-base   Base URL of the external control-schedule API
  -api-token  Bearer token for the external API

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/hours-engine/api"
	"github.com/warp/hours-engine/schedule"
	"github.com/warp/hours-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "hours.db", "SQLite database path (:memory: for in-memory)")
	apiBase := flag.String("api-base", os.Getenv("CONTROL_SCHEDULE_API"), "control-schedule API base URL")
	apiToken := flag.String("api-token", os.Getenv("CONTROL_SCHEDULE_TOKEN"), "control-schedule API token")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	client := schedule.New(*apiBase, *apiToken)

	handler, err := api.NewHandler(store, client)
	if err != nil {
		log.Fatalf("failed to initialize handler: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: api.NewRouter(handler),
	}

	go func() {
		log.Printf("hours-registry engine listening on :%d (db=%s)", *port, *dbPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("bye")
}
