//go:build integration

// Package testutil runs spool CLIs in containers next to a real database.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/go-sql-driver/mysql"

	"github.com/velmie/spool/mysql"
)

const (
	mysqlImage     = "mysql:8.0.36"
	mysqlAlias     = "mysql"
	mysqlPort      = nat.Port("3306/tcp")
	mysqlDatabase  = "spool"
	mysqlPassword  = "secret"
	cliImage       = "alpine:3.20"
	cliPath        = "/cli"
	cliExitTimeout = 2 * time.Minute
	startupTimeout = 2 * time.Minute
)

// MySQL is a MySQL server with a spool table. Store and DB reach it from the
// host, CLI containers on Network reach it through DSN.
type MySQL struct {
	Network *testcontainers.DockerNetwork
	DB      *sql.DB
	Store   *mysql.Store
	DSN     string
}

// CLIResult is the outcome of one CLI container run.
type CLIResult struct {
	ExitCode int
	Logs     string
}

func mysqlDSN(host, port string) string {
	return fmt.Sprintf("root:%s@tcp(%s:%s)/%s", mysqlPassword, host, port, mysqlDatabase)
}

// StartMySQL starts MySQL on a fresh network and creates the spool table named
// table. It skips the test when Docker is unavailable.
func StartMySQL(t *testing.T, ctx context.Context, table string) *MySQL {
	t.Helper()

	net, err := network.New(ctx)
	if err != nil {
		t.Skipf("create network: %v", err)
	}
	t.Cleanup(func() { _ = net.Remove(ctx) })

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          mysqlImage,
			ExposedPorts:   []string{string(mysqlPort)},
			Env:            map[string]string{"MYSQL_ROOT_PASSWORD": mysqlPassword, "MYSQL_DATABASE": mysqlDatabase},
			Networks:       []string{net.Name},
			NetworkAliases: map[string][]string{net.Name: {mysqlAlias}},
			WaitingFor: wait.ForSQL(mysqlPort, "mysql", func(host string, port nat.Port) string {
				return mysqlDSN(host, port.Port())
			}).WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, mysqlPort, "")
	if err != nil {
		t.Fatalf("resolve endpoint: %v", err)
	}
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		t.Fatalf("parse endpoint: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN(host, port))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ddl, err := mysql.Schema(mysql.WithTable(table))
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	store, err := mysql.NewStore(db, mysql.WithTable(table))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	return &MySQL{
		Network: net,
		DB:      db,
		Store:   store,
		DSN:     mysqlDSN(mysqlAlias, mysqlPort.Port()),
	}
}

// BuildCLI compiles the command in pkg as a static linux binary.
func BuildCLI(t *testing.T, pkg string) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("resolve working dir: %v", err)
	}
	bin := filepath.Join(t.TempDir(), filepath.Base(filepath.Join(wd, pkg)))

	cmd := exec.Command("go", "build", "-trimpath", "-o", bin, pkg)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOOS=linux", "GOARCH="+runtime.GOARCH)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build %s: %v\n%s", pkg, err, out)
	}

	return bin
}

// RunCLI runs bin in an alpine container on networkName and waits for it to exit.
func RunCLI(t *testing.T, ctx context.Context, networkName, bin string, env map[string]string, args ...string) CLIResult {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      cliImage,
			Entrypoint: []string{cliPath},
			Cmd:        args,
			Env:        env,
			Networks:   []string{networkName},
			Files: []testcontainers.ContainerFile{
				{HostFilePath: bin, ContainerFilePath: cliPath, FileMode: 0o755},
			},
			WaitingFor: wait.ForExit().WithExitTimeout(cliExitTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start cli container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	logs, err := container.Logs(ctx)
	if err != nil {
		t.Fatalf("read cli logs: %v", err)
	}
	defer logs.Close()
	output, err := io.ReadAll(logs)
	if err != nil {
		t.Fatalf("read cli logs: %v", err)
	}

	state, err := container.State(ctx)
	if err != nil {
		t.Fatalf("read cli state: %v", err)
	}

	return CLIResult{ExitCode: state.ExitCode, Logs: string(output)}
}
