//go:build integration

// Package testutil starts throwaway MongoDB and Redis containers for the
// integration tests of the storage adapters.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartMongo()
//	    testURI = tc.Addr
//	    code := m.Run()
//	    tc.Terminate()
//	    os.Exit(code)
//	}
package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 60 * time.Second

// TestContainer wraps a running container and the address to reach it.
type TestContainer struct {
	Container testcontainers.Container
	// Addr is a mongodb:// URI for Mongo and host:port for Redis.
	Addr string
}

// MustStartMongo starts a single-node MongoDB. Calls os.Exit(1) on failure.
func MustStartMongo() *TestContainer {
	tc, err := start("mongo:7", "27017/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start mongo container: %v\n", err)
		os.Exit(1)
	}
	tc.Addr = "mongodb://" + tc.Addr
	return tc
}

// MustStartRedis starts a Redis server. Calls os.Exit(1) on failure.
func MustStartRedis() *TestContainer {
	tc, err := start("redis:7-alpine", "6379/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}
	return tc
}

func start(image, port string) (*TestContainer, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port},
			WaitingFor:   wait.ForExposedPort().WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}

	// Endpoint resolves the first exposed port to host:port.
	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("container endpoint: %w", err)
	}

	return &TestContainer{Container: container, Addr: addr}, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	if err := tc.Container.Terminate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}
}
