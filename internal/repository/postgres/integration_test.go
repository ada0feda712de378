//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dtroode/mdpublish/internal/model"
	"github.com/dtroode/mdpublish/internal/repository"
	repo "github.com/dtroode/mdpublish/internal/repository/postgres"
	"github.com/dtroode/mdpublish/internal/service"
	"github.com/dtroode/mdpublish/internal/testutil"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "mdpublish_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/mdpublish_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestStores_CRUD(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConnection(ctx, dsn, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	t.Run("credentials", func(t *testing.T) {
		cr := repo.NewCredentialRepository(conn.DB)

		_, err := cr.Get(ctx, "missing")
		require.ErrorIs(t, err, model.ErrNotFound)

		require.NoError(t, cr.Set(ctx, "u1", "first"))
		require.NoError(t, cr.Set(ctx, "u1", "second"))

		got, err := cr.Get(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, model.Credential("second"), got)

		uids, err := cr.List(ctx)
		require.NoError(t, err)
		require.Contains(t, uids, model.UID("u1"))
	})

	t.Run("cursors", func(t *testing.T) {
		cur := repo.NewCursorRepository(conn.DB)

		_, ok, err := cur.Get(ctx, "u1")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, cur.Set(ctx, "u1", "c1"))
		require.NoError(t, cur.Set(ctx, "u1", "c2"))
		c, ok, err := cur.Get(ctx, "u1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "c2", c)

		require.NoError(t, cur.Reset(ctx, "u1"))
		_, ok, err = cur.Get(ctx, "u1")
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestAdvisoryLocker_ExcludesSameUser(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConnection(ctx, dsn, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	locker := repo.NewAdvisoryLocker(conn.Locks)

	release, err := locker.Lock(ctx, "u1")
	require.NoError(t, err)

	// a different user is not blocked
	other, err := locker.Lock(ctx, "u2")
	require.NoError(t, err)
	other()

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := locker.Lock(ctx, "u1")
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lease acquired while first is held")
	case <-time.After(200 * time.Millisecond):
	}

	release()
	wg.Wait()

	select {
	case <-acquired:
	default:
		t.Fatal("second lease never acquired")
	}
}

type emptyFeed struct{}

func (emptyFeed) ListDelta(_ context.Context, cursor string, _ bool) (model.Page, error) {
	time.Sleep(20 * time.Millisecond)
	return model.Page{Cursor: cursor + "+"}, nil
}

func (emptyFeed) Read(context.Context, string) ([]byte, error) { return nil, model.ErrNotFound }

func (emptyFeed) Write(context.Context, string, []byte, bool) error { return nil }

type emptyFeedFactory struct{}

func (emptyFeedFactory) ForCredential(model.Credential) model.Provider { return emptyFeed{} }

func TestSync_MoreUsersThanPoolConnections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := repository.Open(ctx, dsn+"&pool_max_conns=2", repository.WithLeases(2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	const users = 8
	for i := 0; i < users; i++ {
		require.NoError(t, backend.Credentials.Set(ctx, model.UID(fmt.Sprintf("pool-u%d", i)), "tok"))
	}

	svc := service.NewSync(backend.Credentials, backend.Cursors, emptyFeedFactory{}, backend.Locker, testutil.MakeNoopLogger())

	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(uid model.UID) {
			defer wg.Done()
			_, err := svc.Sync(ctx, uid)
			errs <- err
		}(model.UID(fmt.Sprintf("pool-u%d", i)))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for i := 0; i < users; i++ {
		cursor, ok, err := backend.Cursors.Get(ctx, model.UID(fmt.Sprintf("pool-u%d", i)))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "+", cursor)
	}
}
