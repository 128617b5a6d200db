// Package dbcloner is the database cloner adapter (C3): logical
// dump/restore of PostgreSQL databases between containers via docker exec
// pg_dump/pg_restore.
package dbcloner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/jackc/pgx/v5"
	"github.com/kanbanhq/controlplane/pkg/apierr"
)

// Adapter clones, creates, deletes and inspects Postgres databases running
// inside named containers.
type Adapter struct {
	user     string
	password string
	// hostFor resolves a container name to the host part of the pgx
	// connection string used for `exists`/`size` reads. The control plane
	// reaches tenant postgres containers over the shared network by
	// container name, not localhost.
	hostFor func(container string) string
}

// New returns an adapter authenticating to every target container as user
// with password. hostFor resolves a container name to a reachable
// host:port for direct pgx connections (exists/size); dump/restore always
// go through docker exec, so they need no network route.
func New(user, password string, hostFor func(container string) string) *Adapter {
	return &Adapter{user: user, password: password, hostFor: hostFor}
}

func (a *Adapter) dockerExec(ctx context.Context, container string, stdin io.Reader, args ...string) ([]byte, []byte, error) {
	full := append([]string{"exec", "-i", container}, args...)
	cmd := exec.CommandContext(ctx, "docker", full...)
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CreateDatabase creates an empty database on container, idempotent if it
// already exists.
func (a *Adapter) CreateDatabase(ctx context.Context, container, db string) error {
	exists, err := a.databaseExistsIn(ctx, container, db)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, stderr, err := a.dockerExec(ctx, container, nil, "createdb", "-U", a.user, db)
	if err != nil {
		return apierr.Transient(fmt.Sprintf("createdb %s on %s: %s", db, container, stderr), err)
	}
	return nil
}

// Clone pipes pg_dump on sourceContainer/sourceDB directly into pg_restore
// on targetContainer/targetDB without staging a dump file on disk — the
// "direct-pipe mode" used by sandbox provisioning.
func (a *Adapter) Clone(ctx context.Context, sourceContainer, sourceDB, targetContainer, targetDB string) error {
	if err := a.CreateDatabase(ctx, targetContainer, targetDB); err != nil {
		return err
	}

	dumpCmd := exec.CommandContext(ctx, "docker", "exec", sourceContainer,
		"pg_dump", "-U", a.user, "--format=custom", "--no-owner", "--no-acl", sourceDB)
	restoreCmd := exec.CommandContext(ctx, "docker", "exec", "-i", targetContainer,
		"pg_restore", "-U", a.user, "--no-owner", "--no-acl", "--clean", "--if-exists", "-d", targetDB)

	pipe, err := dumpCmd.StdoutPipe()
	if err != nil {
		return apierr.Fatal("wire dump/restore pipe", err)
	}
	restoreCmd.Stdin = pipe

	var dumpErr, restoreErr bytes.Buffer
	dumpCmd.Stderr = &dumpErr
	restoreCmd.Stderr = &restoreErr

	if err := restoreCmd.Start(); err != nil {
		return apierr.Transient("start pg_restore", err)
	}
	if err := dumpCmd.Run(); err != nil {
		return apierr.Transient(fmt.Sprintf("pg_dump %s/%s: %s", sourceContainer, sourceDB, dumpErr.String()), err)
	}
	if err := restoreCmd.Wait(); err != nil {
		// pg_restore exits non-zero on warnings as well as hard failures;
		// the source tolerates this and only surfaces stderr content.
		if restoreErr.Len() > 0 {
			return apierr.Transient(fmt.Sprintf("pg_restore %s/%s: %s", targetContainer, targetDB, restoreErr.String()), err)
		}
	}
	return nil
}

// Delete terminates active connections to db on container and drops it.
// No-op if the database is already absent.
func (a *Adapter) Delete(ctx context.Context, container, db string) error {
	exists, err := a.databaseExistsIn(ctx, container, db)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	terminateSQL := fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid();", db)
	if _, _, err := a.dockerExec(ctx, container, nil, "psql", "-U", a.user, "-d", "postgres", "-c", terminateSQL); err != nil {
		return apierr.Transient(fmt.Sprintf("terminate connections to %s", db), err)
	}

	if _, stderr, err := a.dockerExec(ctx, container, nil, "dropdb", "-U", a.user, "--if-exists", db); err != nil {
		return apierr.Transient(fmt.Sprintf("dropdb %s on %s: %s", db, container, stderr), err)
	}
	return nil
}

// Exists reports whether db exists on container.
func (a *Adapter) Exists(ctx context.Context, container, db string) (bool, error) {
	return a.databaseExistsIn(ctx, container, db)
}

func (a *Adapter) databaseExistsIn(ctx context.Context, container, db string) (bool, error) {
	conn, err := a.connect(ctx, container, "postgres")
	if err != nil {
		return false, err
	}
	defer conn.Close(ctx)

	var exists bool
	row := conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", db)
	if err := row.Scan(&exists); err != nil {
		return false, apierr.Transient("check database existence", err)
	}
	return exists, nil
}

// Size returns the on-disk size of db in bytes.
func (a *Adapter) Size(ctx context.Context, container, db string) (int64, error) {
	conn, err := a.connect(ctx, container, "postgres")
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx)

	var size int64
	row := conn.QueryRow(ctx, "SELECT pg_database_size($1)", db)
	if err := row.Scan(&size); err != nil {
		return 0, apierr.Transient("read database size", err)
	}
	return size, nil
}

func (a *Adapter) connect(ctx context.Context, container, db string) (*pgx.Conn, error) {
	host := container
	if a.hostFor != nil {
		host = a.hostFor(container)
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s/%s", a.user, a.password, host, db)
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, apierr.Transient(fmt.Sprintf("connect to %s", container), err)
	}
	return conn, nil
}
