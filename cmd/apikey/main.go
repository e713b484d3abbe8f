// Command apikey provisions and revokes API keys in the PostgreSQL store.
//
// Usage:
//
//	apikey create -client kiosk-1 -company 7 -perms devices:read -live
//	apikey revoke -id 42
//
// The database is taken from the server configuration. The plaintext key
// is printed once on creation; only its hash is stored.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/screenleads/backend/pkg/auth/apikey"
	"github.com/screenleads/backend/pkg/config"
	"github.com/screenleads/backend/pkg/storage"
	"github.com/screenleads/backend/pkg/storage/postgres"
)

var errUsage = errors.New("usage: apikey create|revoke [flags]")

// keyStore is the part of the store the command writes to.
type keyStore interface {
	CreateAPIKey(ctx context.Context, k *storage.APIKey) error
	RevokeAPIKey(ctx context.Context, id int64) error
	Close() error
}

// opener connects to the store named by a config file path.
type opener func(ctx context.Context, configPath string) (keyStore, error)

func main() {
	err := run(context.Background(), os.Args[1:], openPostgres, os.Stdout, os.Stderr)
	switch {
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, open opener, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(stderr, errUsage)
		return errUsage
	}
	switch args[0] {
	case "create":
		return create(ctx, args[1:], open, stdout, stderr)
	case "revoke":
		return revoke(ctx, args[1:], open, stdout, stderr)
	default:
		fmt.Fprintln(stderr, errUsage)
		return errUsage
	}
}

func create(ctx context.Context, args []string, open opener, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	client := fs.String("client", "", "client id presented with the key (required)")
	company := fs.Int64("company", 0, "restrict the key to this company id (0 for all)")
	perms := fs.String("perms", "", "comma-separated resource:action permissions")
	live := fs.Bool("live", false, "issue a live key instead of a test key")
	ttl := fs.Duration("ttl", 0, "key lifetime (0 for no expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *client == "" {
		return fmt.Errorf("-client is required")
	}

	store, err := open(ctx, *configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	key, err := apikey.Generate(*live)
	if err != nil {
		return err
	}
	prefix, err := apikey.ExtractPrefix(key)
	if err != nil {
		return err
	}
	hash, err := apikey.Hash(key)
	if err != nil {
		return err
	}

	rec := &storage.APIKey{
		ClientID:    *client,
		Prefix:      prefix,
		KeyHash:     hash,
		Live:        *live,
		Permissions: splitPerms(*perms),
		Active:      true,
	}
	if *company > 0 {
		rec.CompanyID = company
	}
	if *ttl > 0 {
		exp := time.Now().Add(*ttl)
		rec.ExpiresAt = &exp
	}

	if err := store.CreateAPIKey(ctx, rec); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}
	fmt.Fprintf(stdout, "id:     %d\nclient: %s\nkey:    %s\n", rec.ID, rec.ClientID, key)
	return nil
}

func revoke(ctx context.Context, args []string, open opener, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	id := fs.Int64("id", 0, "key id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id <= 0 {
		return fmt.Errorf("-id is required")
	}

	store, err := open(ctx, *configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RevokeAPIKey(ctx, *id); err != nil {
		return fmt.Errorf("revoking key %d: %w", *id, err)
	}
	fmt.Fprintf(stdout, "revoked %d\n", *id)
	return nil
}

func splitPerms(s string) []string {
	var perms []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	return perms
}

func openPostgres(ctx context.Context, configPath string) (keyStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Type != "postgres" {
		return nil, fmt.Errorf("api keys can only be provisioned in postgres storage, configured %q", cfg.Storage.Type)
	}
	return postgres.New(ctx, postgres.Config{
		DSN:            cfg.Storage.Postgres.DSN,
		MaxConns:       2,
		MinConns:       1,
		MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
	})
}
