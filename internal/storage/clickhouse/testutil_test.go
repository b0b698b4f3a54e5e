package clickhouse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	chstore "swap-guard/internal/storage/clickhouse"
	"swap-guard/internal/storage/migrations"
)

const clickhouseImage = "clickhouse/clickhouse-server:24.1-alpine"

// setupTestDB starts a ClickHouse container and migrates a fresh swap_guard
// database through the production migrator. The container is removed when the
// test finishes; the returned func only closes the connection early.
func setupTestDB(t *testing.T) (*chstore.Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping ClickHouse integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        clickhouseImage,
			ExposedPorts: []string{"9000/tcp"},
			Env:          map[string]string{"CLICKHOUSE_SKIP_USER_SETUP": "1"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections"),
				wait.ForListeningPort("9000/tcp"),
			).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://default@%s:%s/swap_guard?dial_timeout=10s", host, port.Port())
	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	require.NoError(t, err, "migrate clickhouse")
	require.Equal(t, "swap_guard", conn.Database())

	// A second run must find every file recorded and change nothing.
	again, err := migrations.RunClickhouseMigrations(ctx, dsn)
	require.NoError(t, err, "re-run clickhouse migrations")
	require.NoError(t, again.Close())

	return conn, func() { conn.Close() }
}
