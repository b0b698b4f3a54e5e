// Package main applies the embedded PostgreSQL and ClickHouse migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"swap-guard/internal/storage/migrations"
	pgstore "swap-guard/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	if *postgresDSN == "" && *clickhouseDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn or --clickhouse-dsn is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
			os.Exit(1)
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		pool.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error migrating postgres: %v\n", err)
			os.Exit(1)
		}
		if len(applied) == 0 {
			fmt.Println("PostgreSQL: up to date")
		} else {
			fmt.Printf("PostgreSQL: applied %s\n", strings.Join(applied, ", "))
		}
	}

	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error migrating clickhouse: %v\n", err)
			os.Exit(1)
		}
		conn.Close()
		fmt.Println("ClickHouse: migrations applied")
	}
}
