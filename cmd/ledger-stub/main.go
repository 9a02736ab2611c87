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

	"github.com/joho/godotenv"

	"github.com/memestreet/marketsync/internal/ledgertest"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	listenAddr := flag.String("listen", getenv("LEDGER_STUB_LISTEN", ":8000"), "HTTP listen address")
	flag.Parse()

	ledger := ledgertest.New()
	ledgertest.Seed(ledger, time.Now())

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           ledger.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("ledger stub listening on %s (api prefix /api, demo token %q)", *listenAddr, ledgertest.DemoToken)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	fmt.Println("ledger stub stopped")
}
