package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studioordo/backoffice/internal/clock"
	jobdomain "github.com/studioordo/backoffice/internal/job/domain"
	"github.com/studioordo/backoffice/internal/job/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestProcessor(t *testing.T, registry Registry) (*Processor, *store.Store) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&jobdomain.JobRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	jobStore := store.NewStore(store.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	return NewProcessor(Params{
		Store:    jobStore,
		Log:      zap.NewNop(),
		Registry: registry,
	}), jobStore
}

func TestTickDispatchesToRegisteredHandler(t *testing.T) {
	var handled string
	registry := Registry{
		"greet.user": func(ctx context.Context, job jobdomain.Payload) jobdomain.Result {
			handled = job.Type
			return jobdomain.Succeed()
		},
	}
	processor, jobStore := newTestProcessor(t, registry)
	ctx := context.Background()

	id, err := jobStore.Enqueue(ctx, "greet.user", nil, store.EnqueueOptions{})
	require.NoError(t, err)

	worked, err := processor.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, "greet.user", handled)

	job, err := jobStore.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusCompleted, job.Status)
}

func TestTickUnregisteredTypeIsTerminal(t *testing.T) {
	processor, jobStore := newTestProcessor(t, Registry{})
	ctx := context.Background()

	// Empty allow-list on the store lets the orphan type in.
	id, err := jobStore.Enqueue(ctx, "orphan.type", nil, store.EnqueueOptions{})
	require.NoError(t, err)

	worked, err := processor.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	job, err := jobStore.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusDead, job.Status)
	require.NotNil(t, job.LastError)
	assert.Contains(t, *job.LastError, "orphan.type")
}

func TestRegistryTypes(t *testing.T) {
	registry := Registry{
		"a.job": func(ctx context.Context, job jobdomain.Payload) jobdomain.Result { return jobdomain.Succeed() },
		"b.job": func(ctx context.Context, job jobdomain.Payload) jobdomain.Result { return jobdomain.Succeed() },
	}
	assert.ElementsMatch(t, []string{"a.job", "b.job"}, registry.Types())
}
