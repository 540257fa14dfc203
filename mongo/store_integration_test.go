//go:build integration

package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/velmie/spool"
	"github.com/velmie/spool/mongo"
)

func setupStore(t *testing.T) *mongo.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcmongo.Run(ctx,
		"mongo:7",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Waiting for connections").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("start mongo container: %v", err)
	}
	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Disconnect(ctx)
		_ = container.Terminate(ctx)
	})

	store, err := mongo.NewStore(client.Database("spool_test"), "emails")
	require.NoError(t, err)
	require.NoError(t, store.EnsureIndexes(ctx))
	return store
}

func TestStoreLifecycleIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	first, err := store.Insert(ctx, []byte("first"))
	require.NoError(t, err)
	second, err := store.Insert(ctx, []byte("second"))
	require.NoError(t, err)

	cursor, err := store.FindUnclaimed(ctx, 0)
	require.NoError(t, err)
	var ids []spool.ID
	for cursor.Next(ctx) {
		ids = append(ids, cursor.Record().ID)
	}
	require.NoError(t, cursor.Err())
	require.NoError(t, cursor.Close(ctx))
	require.Equal(t, []spool.ID{first, second}, ids)

	now := time.Now()
	ok, err := store.Claim(ctx, first, now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.Claim(ctx, first, now)
	require.NoError(t, err)
	require.False(t, ok)

	pending, err := store.CountUnclaimed(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pending)

	recovered, err := store.RecoverStale(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), recovered)

	deleted, err := store.Delete(ctx, second)
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestStoreSkipsForeignDocumentsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)
	_, err := store.Collection().InsertOne(ctx, bson.D{{Key: "message", Value: 12}, {Key: "sentOn", Value: nil}})
	require.NoError(t, err)

	sp := spool.MustNew(store)
	_, err = sp.Enqueue(ctx, spool.Message{To: []string{"a@example.com"}, Body: "hi"})
	require.NoError(t, err)

	result, err := sp.Flush(ctx, spool.SendFunc(func(context.Context, spool.Message) (int, []string, error) {
		return 1, nil, nil
	}))
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Skipped)

	pending, err := store.CountUnclaimed(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pending)
}
