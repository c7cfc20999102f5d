// Command reconcile lists and replays payments that went through on chain
// but were not recorded in the ledger.
//
//	reconcile list
//	reconcile replay <tx-hash>
//	reconcile replay-all
//	reconcile token [-subject name] [-ttl 1h]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/axomx/reward-ledger/internal/app/runtime"
	"github.com/axomx/reward-ledger/internal/config"
	"github.com/axomx/reward-ledger/internal/middleware"
	"github.com/axomx/reward-ledger/pkg/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: reconcile [-config path] list|replay <tx-hash>|replay-all|token\n")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults to $LEDGER_CONFIG)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if flag.Arg(0) == "token" {
		issueToken(cfg, flag.Args()[1:])
		return
	}

	// Background jobs stay off; this process only replays.
	cfg.Scheduler.Enabled = false
	cfg.Reconcile.Enabled = false
	logr := logger.New(cfg.Logging)

	application, err := runtime.NewApplication(cfg, logr)
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}
	defer func() { _ = application.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	svc := application.App()

	switch flag.Arg(0) {
	case "list":
		entries, err := svc.Journal.List(ctx)
		if err != nil {
			log.Fatalf("list journal: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			log.Fatalf("encode: %v", err)
		}
	case "replay":
		if flag.NArg() != 2 {
			usage()
			os.Exit(2)
		}
		if err := svc.Poller.ReplayNow(ctx, flag.Arg(1)); err != nil {
			log.Fatalf("replay %s: %v", flag.Arg(1), err)
		}
		fmt.Printf("%s recorded\n", flag.Arg(1))
	case "replay-all":
		n := svc.Poller.Tick(ctx)
		fmt.Printf("%d payment(s) recorded\n", n)
	default:
		usage()
		os.Exit(2)
	}
}

func issueToken(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "operator", "Token subject")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	_ = fs.Parse(args)

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("LEDGER_JWT_SECRET is not configured")
	}
	token, err := middleware.IssueAdminToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *subject, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
