package submit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mediarelay/genqueue/pkg/core"
	"github.com/mediarelay/genqueue/pkg/provider"
	"github.com/mediarelay/genqueue/pkg/store"
	"github.com/mediarelay/genqueue/pkg/tokenpool"
)

// fakeClient scripts one response per start attempt. A nil entry succeeds.
type fakeClient struct {
	mu        sync.Mutex
	startErrs []error
	calls     int
	usedCreds []string
}

func (c *fakeClient) Start(ctx context.Context, credential string, payload []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.calls
	c.calls++
	c.usedCreds = append(c.usedCreds, credential)
	if call < len(c.startErrs) && c.startErrs[call] != nil {
		return "", c.startErrs[call]
	}
	return fmt.Sprintf("operations/gen-%d", call), nil
}

func (c *fakeClient) Poll(ctx context.Context, credential, operation string) (*provider.PollResult, error) {
	return &provider.PollResult{}, nil
}

func (c *fakeClient) startCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeClient) credentials() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.usedCreds...)
}

func openEngineStore(t *testing.T) *store.GormStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine_test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_journal_mode=WAL&_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s := store.NewGormStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedTokens(t *testing.T, s *store.GormStore, ids ...string) []*core.Token {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	tokens := make([]*core.Token, len(ids))
	for i, id := range ids {
		tokens[i] = &core.Token{ID: id, Secret: "sk-" + id, Active: true, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.CreateToken(context.Background(), tokens[i]))
	}
	return tokens
}

func seedJob(t *testing.T, s *store.GormStore) *core.Job {
	t.Helper()
	job := &core.Job{TenantID: "tenant-a", Payload: []byte(`{"prompt":"x"}`)}
	require.NoError(t, s.CreateJobs(context.Background(), []*core.Job{job}))
	return job
}

func fastConfig() Config {
	return Config{MaxInstantRetries: 3, RetryDelay: time.Millisecond, StartTimeout: time.Second}
}

func TestEngine_Submit_FirstAttemptSucceeds(t *testing.T) {
	s := openEngineStore(t)
	tokens := seedTokens(t, s, "token-1")
	registry := tokenpool.NewRegistry(s)
	client := &fakeClient{}
	engine := NewEngine(s, registry, client, nil, fastConfig())
	job := seedJob(t, s)

	sub, err := engine.Submit(context.Background(), job, PreAssigned(tokens[0]))
	require.NoError(t, err)
	assert.Equal(t, "token-1", sub.Token.ID)
	assert.Equal(t, "operations/gen-0", sub.Operation)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, got.Status)
	assert.Equal(t, "token-1", got.TokenID)
	assert.Equal(t, "operations/gen-0", got.Operation)
	assert.Equal(t, 1, got.InstantRetries)
	assert.NotNil(t, got.StartedAt)

	tok, err := s.GetToken(context.Background(), "token-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, tok.RequestCount)
}

func TestEngine_Submit_RotatesOnTransientFailure(t *testing.T) {
	s := openEngineStore(t)
	seedTokens(t, s, "token-1", "token-2")
	registry := tokenpool.NewRegistry(s)
	client := &fakeClient{startErrs: []error{
		&core.TransientNetworkError{Err: errors.New("reset")},
		nil,
	}}
	engine := NewEngine(s, registry, client, nil, fastConfig())
	job := seedJob(t, s)

	sub, err := engine.Submit(context.Background(), job, Rotate())
	require.NoError(t, err)
	assert.Equal(t, 2, client.startCalls())

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, got.Status)
	assert.Equal(t, 2, got.InstantRetries)
	assert.Equal(t, sub.Token.ID, got.TokenID)
}

func TestEngine_Submit_FailedAttemptRotatesAwayFromToken(t *testing.T) {
	s := openEngineStore(t)
	tokens := seedTokens(t, s, "token-1", "token-2")
	registry := tokenpool.NewRegistry(s)
	transient := &core.TransientNetworkError{Err: errors.New("reset")}
	client := &fakeClient{startErrs: []error{transient, transient, nil}}
	engine := NewEngine(s, registry, client, nil, fastConfig())
	job := seedJob(t, s)

	_, err := engine.Submit(context.Background(), job, PreAssigned(tokens[0]))
	require.NoError(t, err)

	// A failed attempt bumps the token's usage timestamp, so the retry
	// moves to the other token instead of hammering the one that just
	// failed.
	assert.Equal(t, []string{"sk-token-1", "sk-token-2", "sk-token-1"}, client.credentials())
}

func TestEngine_Submit_AuthFailureDisablesToken(t *testing.T) {
	s := openEngineStore(t)
	tokens := seedTokens(t, s, "token-1", "token-2")
	registry := tokenpool.NewRegistry(s)
	client := &fakeClient{startErrs: []error{
		&core.AuthenticationError{Err: errors.New("401")},
		nil,
	}}
	engine := NewEngine(s, registry, client, nil, fastConfig())
	job := seedJob(t, s)

	sub, err := engine.Submit(context.Background(), job, PreAssigned(tokens[0]))
	require.NoError(t, err)
	assert.Equal(t, "token-2", sub.Token.ID)

	bad, err := s.GetToken(context.Background(), "token-1")
	require.NoError(t, err)
	assert.False(t, bad.Active)
	assert.Equal(t, "authentication failure", bad.DisabledReason)
}

func TestEngine_Submit_AllTokensAuthFail_JobFails(t *testing.T) {
	s := openEngineStore(t)
	tokens := seedTokens(t, s, "token-1", "token-2")
	registry := tokenpool.NewRegistry(s)
	client := &fakeClient{startErrs: []error{
		&core.AuthenticationError{Err: errors.New("401")},
		&core.AuthenticationError{Err: errors.New("401")},
	}}
	engine := NewEngine(s, registry, client, nil, fastConfig())
	job := seedJob(t, s)

	_, err := engine.Submit(context.Background(), job, PreAssigned(tokens[0]))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNoActiveTokens)

	got, gerr := s.GetJob(context.Background(), job.ID)
	require.NoError(t, gerr)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "no active tokens available")
	assert.Contains(t, got.LastError, "start attempts")

	for _, id := range []string{"token-1", "token-2"} {
		tok, terr := s.GetToken(context.Background(), id)
		require.NoError(t, terr)
		assert.False(t, tok.Active, "token %s", id)
	}
}

func TestEngine_Submit_RetryBudgetExhausted(t *testing.T) {
	s := openEngineStore(t)
	seedTokens(t, s, "token-1", "token-2")
	registry := tokenpool.NewRegistry(s)
	transient := &core.TransientNetworkError{Err: errors.New("reset")}
	client := &fakeClient{startErrs: []error{transient, transient, transient}}
	engine := NewEngine(s, registry, client, nil, fastConfig())
	job := seedJob(t, s)

	_, err := engine.Submit(context.Background(), job, Rotate())
	require.Error(t, err)
	assert.Equal(t, 3, client.startCalls())

	got, gerr := s.GetJob(context.Background(), job.ID)
	require.NoError(t, gerr)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "after 3 start attempts")
}

func TestEngine_Submit_PreAssignedTokenDisabledMidBatch(t *testing.T) {
	s := openEngineStore(t)
	tokens := seedTokens(t, s, "token-1", "token-2")
	registry := tokenpool.NewRegistry(s)
	client := &fakeClient{}
	engine := NewEngine(s, registry, client, nil, fastConfig())
	job := seedJob(t, s)

	// A sibling job's auth failure disabled the pre-assigned token before
	// this job's first attempt.
	require.NoError(t, registry.Disable(context.Background(), "token-1", "authentication failure"))

	sub, err := engine.Submit(context.Background(), job, PreAssigned(tokens[0]))
	require.NoError(t, err)
	assert.Equal(t, "token-2", sub.Token.ID)
}

func TestEngine_Submit_ContextCancelledBetweenAttempts(t *testing.T) {
	s := openEngineStore(t)
	seedTokens(t, s, "token-1")
	registry := tokenpool.NewRegistry(s)
	transient := &core.TransientNetworkError{Err: errors.New("reset")}
	client := &fakeClient{startErrs: []error{transient, transient, transient}}
	engine := NewEngine(s, registry, client, nil, Config{
		MaxInstantRetries: 3, RetryDelay: time.Hour, StartTimeout: time.Second,
	})
	job := seedJob(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := engine.Submit(ctx, job, Rotate())
	require.Error(t, err)
	assert.Equal(t, 1, client.startCalls())
}

func TestEngine_Submit_EmitsLifecycleEvents(t *testing.T) {
	s := openEngineStore(t)
	tokens := seedTokens(t, s, "token-1")
	registry := tokenpool.NewRegistry(s)
	bus := core.NewBus()
	events := bus.Subscribe()
	client := &fakeClient{}
	engine := NewEngine(s, registry, client, bus, fastConfig())
	job := seedJob(t, s)

	_, err := engine.Submit(context.Background(), job, PreAssigned(tokens[0]))
	require.NoError(t, err)

	select {
	case e := <-events:
		started, ok := e.(*core.JobStarted)
		require.True(t, ok)
		assert.Equal(t, job.ID, started.Job.ID)
		assert.Equal(t, "token-1", started.TokenID)
	case <-time.After(time.Second):
		t.Fatal("no JobStarted event received")
	}
}

func TestEngine_StartOnce_RotatesAndRecordsUsage(t *testing.T) {
	s := openEngineStore(t)
	seedTokens(t, s, "token-1")
	registry := tokenpool.NewRegistry(s)
	client := &fakeClient{}
	engine := NewEngine(s, registry, client, nil, fastConfig())
	job := seedJob(t, s)

	sub, err := engine.StartOnce(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, "token-1", sub.Token.ID)

	// StartOnce leaves the job record alone; the poller owns it.
	got, gerr := s.GetJob(context.Background(), job.ID)
	require.NoError(t, gerr)
	assert.Equal(t, core.StatusPending, got.Status)

	tok, terr := s.GetToken(context.Background(), "token-1")
	require.NoError(t, terr)
	assert.EqualValues(t, 1, tok.RequestCount)
}
