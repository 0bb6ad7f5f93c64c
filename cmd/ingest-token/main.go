// Command ingest-token mints bearer tokens for the ingestion endpoint. The
// anon token is the one the form service is configured with.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
	"github.com/phbpx/leadcapture/handler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := struct {
		Auth struct {
			JWTSecret string `conf:"required,mask"`
		}
		Role string        `conf:"default:anon"`
		TTL  time.Duration `conf:"default:0s"`
	}{}

	_ = godotenv.Load()

	help, err := conf.Parse("INGEST", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	switch cfg.Role {
	case handler.RoleAnon, handler.RoleService:
	default:
		return fmt.Errorf("unknown role %q", cfg.Role)
	}

	token, err := handler.SignToken(cfg.Auth.JWTSecret, cfg.Role, cfg.TTL)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
