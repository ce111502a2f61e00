//go:build cgo

package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	embedded "github.com/dolthub/driver"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/storage"
)

const databaseName = "parsnip"

// openEmbedded opens (creating if absent) an embedded Dolt database under
// <dataDir>/dolt in two units of work: first ensure the database exists,
// then open the working connection against it. Embedded Dolt requires CGO,
// hence the build-tag split with open_nocgo.go.
func openEmbedded(ctx context.Context, dataDir string, opts storage.Options) (*Store, error) {
	absPath, err := filepath.Abs(filepath.Join(dataDir, "dolt"))
	if err != nil {
		return nil, graph.StorageErr("open", err)
	}
	if !opts.ReadOnly {
		if err := os.MkdirAll(absPath, 0o750); err != nil {
			return nil, graph.StorageErr("open", fmt.Errorf("create dolt dir: %w", err))
		}
	}

	initDSN := fmt.Sprintf("file://%s?commitname=parsnip&commitemail=parsnip@localhost", absPath)
	if !opts.ReadOnly {
		if err := withEmbeddedDB(ctx, initDSN, func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", databaseName))
			return err
		}); err != nil {
			return nil, graph.StorageErr("open", fmt.Errorf("create database: %w", err))
		}
	}

	dbDSN := fmt.Sprintf("file://%s?commitname=parsnip&commitemail=parsnip@localhost&database=%s", absPath, databaseName)
	cfg, err := embedded.ParseDSN(dbDSN)
	if err != nil {
		return nil, graph.StorageErr("open", fmt.Errorf("parse dsn: %w", err))
	}
	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return nil, graph.StorageErr("open", fmt.Errorf("new connector: %w", err))
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1) // embedded Dolt is single-writer
	db.SetMaxIdleConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, graph.StorageErr("open", fmt.Errorf("ping dolt: %w", err))
	}

	if !opts.ReadOnly {
		if err := ensureSchema(ctx, db); err != nil {
			_ = db.Close()
			_ = connector.Close()
			return nil, err
		}
	}

	return &Store{db: db, closer: connector.Close}, nil
}

// withEmbeddedDB runs exactly one unit of work against a fresh embedded
// connector, closing both the db handle and connector (which releases the
// filesystem lock the embedded engine holds) before returning.
func withEmbeddedDB(ctx context.Context, dsn string, fn func(context.Context, *sql.DB) error) error {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return err
	}
	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return err
	}
	db := sql.OpenDB(connector)
	var closers []io.Closer
	closers = append(closers, connector)
	defer func() {
		_ = db.Close()
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	return fn(ctx, db)
}
