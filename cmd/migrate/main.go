// Command migrate copies the persisted history and product cache between
// storage backends
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"nutriscan/internal/history"
	"nutriscan/internal/model"
	"nutriscan/internal/store"
)

const version = "1.0.0"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type options struct {
	from        string
	to          string
	dataDir     string
	redisAddr   string
	databaseURL string
	dryRun      bool
	force       bool
	backup      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.from, "from", store.BackendFile, "Source backend (bolt, sqlite, file, redis, postgres)")
	flag.StringVar(&opts.to, "to", store.BackendBolt, "Target backend (bolt, sqlite, file, redis, postgres)")
	flag.StringVar(&opts.dataDir, "dir", "./data", "Data directory for file based backends")
	flag.StringVar(&opts.redisAddr, "redis", "localhost:6379", "Redis address")
	flag.StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Show what would be done without making changes")
	flag.BoolVar(&opts.force, "force", false, "Overwrite data already present in the target")
	flag.BoolVar(&opts.backup, "backup", true, "Back up the source blobs as JSON files before migrating")
	versionFlag := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("migrate version %s\n", version)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Printf("=== nutriscan data migration v%s ===\n\n", version)
	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// blob is one persisted key with its decoded record count
type blob struct {
	key     string
	data    []byte
	count   int
	skipped int
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.from == opts.to && opts.from != store.BackendRedis && opts.from != store.BackendPostgres {
		return fmt.Errorf("source and target are both %s", opts.from)
	}

	// Step 1: Read and validate the source
	src, err := openBackend(ctx, opts.from, opts)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	fmt.Fprintf(out, "Reading %s store...\n", opts.from)
	blobs, err := readBlobs(ctx, src)
	if err != nil {
		return err
	}
	if len(blobs) == 0 {
		fmt.Fprintln(out, "Nothing to migrate")
		return nil
	}
	for _, b := range blobs {
		fmt.Fprintf(out, "Found %q: %d records\n", b.key, b.count)
		if b.skipped > 0 {
			fmt.Fprintf(out, "Warning: %d unreadable %q entries will be dropped by the server on load\n", b.skipped, b.key)
		}
	}

	if opts.dryRun {
		fmt.Fprintln(out, "\n=== Dry run, no changes made ===")
		return nil
	}

	// Step 2: Back up the source blobs
	if opts.backup {
		backupDir := filepath.Join(opts.dataDir, "backup_"+time.Now().Format("20060102_150405"))
		if err := backupBlobs(ctx, backupDir, blobs); err != nil {
			fmt.Fprintf(out, "Warning: backup failed: %v\n", err)
		} else {
			fmt.Fprintf(out, "Backup written: %s\n", backupDir)
		}
	}

	// Step 3: Write the target
	dst, err := openBackend(ctx, opts.to, opts)
	if err != nil {
		return fmt.Errorf("open target: %w", err)
	}
	defer dst.Close()

	if !opts.force {
		for _, b := range blobs {
			_, err := dst.Get(ctx, b.key)
			if err == nil {
				return fmt.Errorf("target already has %q, use -force to overwrite", b.key)
			}
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("check target %q: %w", b.key, err)
			}
		}
	}

	fmt.Fprintf(out, "\nWriting %s store...\n", opts.to)
	for _, b := range blobs {
		if err := dst.Set(ctx, b.key, b.data); err != nil {
			return fmt.Errorf("write %q: %w", b.key, err)
		}
		fmt.Fprintf(out, "Migrated %q: %d records\n", b.key, b.count)
	}

	fmt.Fprintln(out, "\n=== Migration complete ===")
	return nil
}

func openBackend(ctx context.Context, backend string, opts options) (store.KV, error) {
	return store.Open(ctx, store.Options{
		Backend:     backend,
		DataDir:     opts.dataDir,
		RedisAddr:   opts.redisAddr,
		DatabaseURL: opts.databaseURL,
	})
}

// readBlobs loads the history and product cache, refusing blobs the server
// could not read back at all
func readBlobs(ctx context.Context, kv store.KV) ([]blob, error) {
	var blobs []blob

	h, err := readBlob(ctx, kv, history.DefaultKey, func(raw []byte) error {
		var p model.Product
		return json.Unmarshal(raw, &p)
	})
	if err != nil {
		return nil, err
	}
	if h != nil {
		blobs = append(blobs, *h)
	}

	p, err := readBlob(ctx, kv, history.DefaultProductsKey, func(raw []byte) error {
		var payload *model.ProductPayload
		return json.Unmarshal(raw, &payload)
	})
	if err != nil {
		return nil, err
	}
	if p != nil {
		blobs = append(blobs, *p)
	}

	return blobs, nil
}

// readBlob returns nil for an absent key. The blob must be a JSON array;
// entries that fail decodeEntry are counted as skipped.
func readBlob(ctx context.Context, kv store.KV, key string, decodeEntry func([]byte) error) (*blob, error) {
	data, err := kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}

	var entries []jsoniter.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &model.MalformedDataError{Source: key, Err: err}
	}
	b := &blob{key: key, data: data}
	for _, raw := range entries {
		if decodeEntry(raw) != nil {
			b.skipped++
			continue
		}
		b.count++
	}
	return b, nil
}

func backupBlobs(ctx context.Context, dir string, blobs []blob) error {
	fs, err := store.NewFileStore(dir)
	if err != nil {
		return err
	}
	defer fs.Close()

	for _, b := range blobs {
		if err := fs.Set(ctx, b.key, b.data); err != nil {
			return err
		}
	}
	return nil
}
