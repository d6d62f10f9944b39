// voxturn-token prints a signed session token for local testing.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/teslashibe/voxturn/internal/config"
	"github.com/teslashibe/voxturn/pkg/auth"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	userID     = flag.String("user", "", "User id to embed in the token")
	ttl        = flag.Duration("ttl", 0, "Token lifetime (default: auth.token_ttl)")
)

func main() {
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: voxturn-token -user <id> [-ttl 24h]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	v, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.Auth.TokenTTL
	}

	token, err := v.IssueToken(*userID, lifetime)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println(token)
}
