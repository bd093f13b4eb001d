//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/clients"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/storefront-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/session"
)

func TestTokenStoresIntegration(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	redisC, redisAddr := startRedis(ctx, t)
	defer terminateContainer(t, redisC)

	pgC, dbURL := startPostgres(ctx, t)
	defer terminateContainer(t, pgC)

	rdb, err := auth.NewRedisClient(ctx, redisAddr, "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, db.RunMigrations(dbURL, zap.NewNop()))
	pool, err := db.NewPool(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()

	stores := map[string]auth.TokenStore{
		"redis":    auth.NewRedisStore(rdb, time.Hour),
		"postgres": auth.NewPostgresStore(pool),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			gate := auth.NewGate("sess-"+name, store, zap.NewNop())
			require.False(t, gate.HasSession(ctx))
			require.NoError(t, gate.SetSession(ctx, "tok", []byte(`{"id":"u1"}`)))

			// a new gate only sees what was persisted
			fresh := auth.NewGate("sess-"+name, store, zap.NewNop())
			token, ok := fresh.Token(ctx)
			require.True(t, ok)
			assert.Equal(t, "tok", token)

			user, err := store.Get(ctx, "sess-"+name, auth.KeyUser)
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":"u1"}`, user)

			require.NoError(t, store.Set(ctx, "sess-"+name, auth.KeyToken, "rotated"))
			token, _ = fresh.Token(ctx)
			assert.Equal(t, "rotated", token)

			require.NoError(t, fresh.Clear(ctx))
			assert.False(t, auth.NewGate("sess-"+name, store, nil).HasSession(ctx))
			_, err = store.Get(ctx, "sess-"+name, auth.KeyUser)
			assert.ErrorIs(t, err, auth.ErrNotFound)
		})
	}
}

func TestSequenceRepositoriesIntegration(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	redisC, redisAddr := startRedis(ctx, t)
	defer terminateContainer(t, redisC)

	pgC, dbURL := startPostgres(ctx, t)
	defer terminateContainer(t, pgC)

	rdb, err := auth.NewRedisClient(ctx, redisAddr, "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, db.RunMigrations(dbURL, zap.NewNop()))
	pool, err := db.NewPool(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()

	repos := map[string]events.SequenceRepository{
		"redis":    events.NewRedisSequenceRepository(rdb),
		"postgres": events.NewPostgresSequenceRepository(pool),
	}
	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			for want := int64(1); want <= 3; want++ {
				got, err := repo.NextSequence(ctx, "seq-"+name)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			other, err := repo.NextSequence(ctx, "seq-other-"+name)
			require.NoError(t, err)
			assert.Equal(t, int64(1), other)
		})
	}
}

func TestCheckoutPublishesEvents(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	rabbitC, rabbitURL := startRabbitMQ(ctx, t)
	defer terminateContainer(t, rabbitC)

	conn, err := events.Dial(rabbitURL)
	require.NoError(t, err)
	defer conn.Close()

	pub, err := events.NewPublisher(conn, events.PublisherOptions{})
	require.NoError(t, err)
	defer pub.Close()

	checkedOutQ := bindQueue(t, conn, events.CartCheckedOutRoutingKey)
	resetQ := bindQueue(t, conn, events.CartResetRoutingKey)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/cart/checkout":
			_, _ = w.Write([]byte(`{"orderId":"o-1","status":"pending"}`))
		default:
			_, _ = w.Write([]byte(`{"items":[{"id":"a","productRef":"p1","unitPrice":"100","quantity":2}]}`))
		}
	}))
	defer backend.Close()

	base := clients.NewClient("cart-api", backend.URL, &http.Client{Timeout: 5 * time.Second})
	sessions := session.NewRegistry(auth.NewMemoryStore(), clients.NewCartClient(base), cart.Options{Notifier: pub}, zap.NewNop())
	router := httpapi.NewRouter(httpapi.Deps{
		Logger:   zap.NewNop(),
		Cfg:      config.Config{CORSAllowOrigins: []string{"*"}},
		Sessions: sessions,
	})
	app := httptest.NewServer(router)
	defer app.Close()

	call(t, app.URL, http.MethodPost, "/me/session", `{"token":"tok"}`, http.StatusCreated)
	call(t, app.URL, http.MethodGet, "/me/cart", "", http.StatusOK)
	call(t, app.URL, http.MethodPost, "/me/cart/checkout",
		`{"email":"ada@example.com","phone":"1","shipping":{"street":"s","city":"c","state":"st","zip":"z","country":"DK"}}`,
		http.StatusOK)
	call(t, app.URL, http.MethodDelete, "/me/session", "", http.StatusNoContent)

	var checkedOut events.CartCheckedOutEvent
	waitForMessage(ctx, t, conn, checkedOutQ, &checkedOut)
	require.NoError(t, checkedOut.Validate(events.EventTypeCartCheckedOut, 1))
	assert.Equal(t, "int-session", checkedOut.PartitionKey)
	assert.Equal(t, "o-1", checkedOut.Payload.OrderID)
	assert.Equal(t, "175", checkedOut.Payload.Total.String())

	var reset events.CartResetEvent
	waitForMessage(ctx, t, conn, resetQ, &reset)
	require.NoError(t, reset.Validate(events.EventTypeCartReset, 1))
	assert.Equal(t, session.ReasonLogout, reset.Payload.Reason)
	require.NotNil(t, reset.Sequence)
	require.NotNil(t, checkedOut.Sequence)
	assert.Greater(t, *reset.Sequence, *checkedOut.Sequence)
}

func call(t *testing.T, baseURL, method, path, body string, want int) {
	t.Helper()
	req, err := http.NewRequest(method, baseURL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Session-Id", "int-session")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, want, resp.StatusCode, "%s %s", method, path)
}

func bindQueue(t *testing.T, conn *amqp.Connection, routingKey string) string {
	t.Helper()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	queue := "storefront-test." + routingKey
	_, err = ch.QueueDeclare(queue, true, false, false, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(queue, routingKey, events.EventsExchange, false, nil))
	return queue
}

func waitForMessage[T any](ctx context.Context, t *testing.T, conn *amqp.Connection, queue string, dest *T) {
	t.Helper()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	backoff := 50 * time.Millisecond
	for {
		select {
		case <-pollCtx.Done():
			t.Fatalf("timed out waiting for message on %s: %v", queue, pollCtx.Err())
		default:
		}

		msg, ok, getErr := ch.Get(queue, true)
		require.NoError(t, getErr)
		if ok {
			require.NoError(t, json.Unmarshal(msg.Body, dest))
			return
		}

		time.Sleep(backoff)
		if backoff < time.Second {
			backoff *= 2
		}
	}
}

func startRedis(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return container, fmt.Sprintf("%s:%s", host, mappedPort.Port())
}

func startPostgres(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "storefront"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/storefront?sslmode=disable", host, mappedPort.Port())
	return container, dsn
}

func startRabbitMQ(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	return container, fmt.Sprintf("amqp://guest:guest@%s:%s/", host, mappedPort.Port())
}

func terminateContainer(t *testing.T, c testcontainers.Container) {
	t.Helper()
	terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Terminate(terminateCtx))
}
