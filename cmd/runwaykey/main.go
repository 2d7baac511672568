package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dreamframe/internal/infra"
	"dreamframe/internal/infra/credentials"
)

func main() {
	var (
		keyFlag      string
		fileFlag     string
		providerFlag string
		deleteFlag   bool
	)
	flag.StringVar(&keyFlag, "key", "", "RunwayML API key (falls back to RUNWAYML_API_KEY)")
	flag.StringVar(&fileFlag, "file", "", "service-account JSON file when -provider=vertex (falls back to VERTEX_CREDENTIALS_FILE)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderRunway, "credential to configure (runway or vertex)")
	flag.BoolVar(&deleteFlag, "delete", false, "remove the stored credential instead of setting it")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	switch provider {
	case credentials.ProviderRunway, credentials.ProviderVertex:
	case "":
		provider = credentials.ProviderRunway
	default:
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	var secret []byte
	if !deleteFlag {
		var err error
		secret, err = readSecret(provider, keyFlag, fileFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "runwaykey").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	ctxExec, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()

	if deleteFlag {
		if err := store.Delete(ctxExec, provider); err != nil {
			fmt.Fprintf(os.Stderr, "failed to delete %s credential: %v\n", provider, err)
			os.Exit(1)
		}
		fmt.Printf("%s credential removed\n", provider)
		return
	}

	var persistErr error
	switch provider {
	case credentials.ProviderVertex:
		persistErr = store.SetVertexServiceAccount(ctxExec, secret)
	default:
		persistErr = store.SetRunwayAPIKey(ctxExec, string(secret))
	}
	if persistErr != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s credential: %v\n", provider, persistErr)
		os.Exit(1)
	}
	fmt.Printf("%s credential stored successfully\n", provider)
}

func readSecret(provider, key, file string) ([]byte, error) {
	if provider == credentials.ProviderVertex {
		path := strings.TrimSpace(file)
		if path == "" {
			path = strings.TrimSpace(os.Getenv("VERTEX_CREDENTIALS_FILE"))
		}
		if path == "" {
			return nil, fmt.Errorf("vertex service account is required via -file or VERTEX_CREDENTIALS_FILE")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account: %w", err)
		}
		return data, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("RUNWAYML_API_KEY"))
	}
	if key == "" {
		return nil, fmt.Errorf("RunwayML API key is required via -key or RUNWAYML_API_KEY")
	}
	return []byte(key), nil
}
