package supervise

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/catalog"
	"stackctl/internal/platform"
)

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available on this system", name)
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "redis", Key{Kind: catalog.Redis}.String())
	assert.Equal(t, "mysql@8.4", Key{Kind: catalog.MySQL, Version: "8.4"}.String())
}

func TestSpawnAndExitEvent(t *testing.T) {
	requireTool(t, "sleep")
	s := New(platform.New())
	key := Key{Kind: catalog.Redis}

	rec, err := s.Spawn(context.Background(), key, "sleep", []string{"0.1"}, nil, []int{6379})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Positive(t, rec.PID)
	assert.Equal(t, []int{6379}, rec.Ports)

	got, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, rec.ID, got.ID)

	select {
	case ev := <-s.Exits():
		assert.Equal(t, key, ev.Key)
		assert.Equal(t, rec.PID, ev.PID)
		assert.NoError(t, ev.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("no exit event received")
	}

	// The record is reaped along with the process.
	_, ok = s.Get(key)
	assert.False(t, ok)
}

func TestSpawnDuplicateKey(t *testing.T) {
	requireTool(t, "sleep")
	s := New(platform.New())
	key := Key{Kind: catalog.Redis}

	_, err := s.Spawn(context.Background(), key, "sleep", []string{"5"}, nil, nil)
	require.NoError(t, err)
	defer s.KillAll()

	_, err = s.Spawn(context.Background(), key, "sleep", []string{"5"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already tracked")
}

func TestSpawnMissingExecutable(t *testing.T) {
	s := New(platform.New())

	_, err := s.Spawn(context.Background(), Key{Kind: catalog.Redis}, "/no/such/binary", nil, nil, nil)
	require.Error(t, err)

	_, ok := s.Get(Key{Kind: catalog.Redis})
	assert.False(t, ok, "a failed spawn must not leave a record behind")
}

func TestTerminate(t *testing.T) {
	requireTool(t, "sleep")
	s := New(platform.New())
	key := Key{Kind: catalog.MySQL, Version: "8.4"}

	_, err := s.Spawn(context.Background(), key, "sleep", []string{"60"}, nil, nil)
	require.NoError(t, err)

	err = s.Terminate(context.Background(), key, 5*time.Second, "")
	require.NoError(t, err)

	_, ok := s.Get(key)
	assert.False(t, ok)

	// Terminating an untracked key is a no-op.
	assert.NoError(t, s.Terminate(context.Background(), key, time.Second, ""))
}

func TestRecordsSortedByKey(t *testing.T) {
	requireTool(t, "sleep")
	s := New(platform.New())
	defer s.KillAll()

	for _, key := range []Key{
		{Kind: catalog.Redis},
		{Kind: catalog.MySQL, Version: "8.4"},
		{Kind: catalog.MySQL, Version: "5.7"},
	} {
		_, err := s.Spawn(context.Background(), key, "sleep", []string{"60"}, nil, nil)
		require.NoError(t, err)
	}

	recs := s.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, "mysql@5.7", recs[0].Key.String())
	assert.Equal(t, "mysql@8.4", recs[1].Key.String())
	assert.Equal(t, "redis", recs[2].Key.String())
}
