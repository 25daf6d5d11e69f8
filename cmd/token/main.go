// Command token mints a bearer token for local use against the API.
//
//	AUTH_JWT_SECRET=... go run ./cmd/token -name cajero
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/warp/inventory-engine/auth"
	"github.com/warp/inventory-engine/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	name := flag.String("name", "dev", "display name claim")
	user := flag.String("user", "", "user ID (UUID); random when empty")
	ttl := flag.Duration("ttl", cfg.Auth.TokenTTL, "token lifetime")
	flag.Parse()

	userID := uuid.New()
	if *user != "" {
		if userID, err = uuid.Parse(*user); err != nil {
			slog.Error("invalid -user", "error", err)
			os.Exit(2)
		}
	}
	if *ttl <= 0 {
		*ttl = time.Hour
	}

	token, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, *ttl).Generate(userID, *name)
	if err != nil {
		slog.Error("failed to sign token", "error", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "user %s, expires in %s\n", userID, *ttl)
	fmt.Println(token)
}
