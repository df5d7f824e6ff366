package mirror

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

type mockRedisStatusCmd struct{ err error }

func (c mockRedisStatusCmd) Err() error { return c.err }

type mockRedisStringCmd struct {
	data []byte
	err  error
}

func (c mockRedisStringCmd) Bytes() ([]byte, error) { return c.data, c.err }
func (c mockRedisStringCmd) Err() error             { return c.err }

type mockRedisIntCmd struct{ err error }

func (c mockRedisIntCmd) Err() error { return c.err }

type mockRedisSetCall struct {
	key        string
	value      interface{}
	expiration time.Duration
}

type mockRedisClient struct {
	mu sync.Mutex

	sets []mockRedisSetCall
	gets []string
	dels [][]string

	getResp map[string]mockRedisStringCmd
}

func (c *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) RedisStatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = append(c.sets, mockRedisSetCall{key: key, value: value, expiration: expiration})
	return mockRedisStatusCmd{}
}

func (c *mockRedisClient) Get(ctx context.Context, key string) RedisStringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets = append(c.gets, key)
	if resp, ok := c.getResp[key]; ok {
		return resp
	}
	return mockRedisStringCmd{err: ErrRedisNil}
}

func (c *mockRedisClient) Del(ctx context.Context, keys ...string) RedisIntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dels = append(c.dels, keys)
	return mockRedisIntCmd{}
}

func (c *mockRedisClient) Close() error { return nil }

func TestRedisStore_PrefixAndKeying(t *testing.T) {
	client := &mockRedisClient{}
	store := NewRedisStore(client, WithRedisPrefix("pfx:"))

	if store.Prefix() != "pfx:" {
		t.Fatalf("Prefix() got %q", store.Prefix())
	}
	if got := store.key("https://example.com", storage.AreaLocal); got != "pfx:https://example.com:local" {
		t.Fatalf("key() got %q", got)
	}
	if got := store.key("https://example.com", storage.AreaSession); got != "pfx:https://example.com:session" {
		t.Fatalf("key() got %q", got)
	}
}

func TestRedisStore_DefaultPrefix(t *testing.T) {
	store := NewRedisStore(&mockRedisClient{})

	if store.Prefix() != "tabsync:mirror:" {
		t.Fatalf("Prefix() got %q", store.Prefix())
	}
}

func TestRedisStore_Save(t *testing.T) {
	client := &mockRedisClient{}
	store := NewRedisStore(client, WithRedisTTL(time.Hour))

	snap := testSnap("https://example.com", map[string]string{"theme": "dark"}, time.Now())
	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.sets) != 1 {
		t.Fatalf("Set calls got %d want 1", len(client.sets))
	}
	call := client.sets[0]
	if call.key != "tabsync:mirror:https://example.com:local" {
		t.Errorf("Set key got %q", call.key)
	}
	if call.expiration != time.Hour {
		t.Errorf("Set expiration got %v want %v", call.expiration, time.Hour)
	}

	var stored Snapshot
	if err := json.Unmarshal(call.value.([]byte), &stored); err != nil {
		t.Fatalf("stored value is not valid JSON: %v", err)
	}
	if stored.Items["theme"] != "dark" {
		t.Errorf("stored Items = %v", stored.Items)
	}
}

func TestRedisStore_LoadMissing(t *testing.T) {
	client := &mockRedisClient{}
	store := NewRedisStore(client)

	snap, err := store.Load(context.Background(), "https://example.com", storage.AreaLocal)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if snap != nil {
		t.Fatalf("Load() got %+v want nil", snap)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.gets) != 1 || client.gets[0] != "tabsync:mirror:https://example.com:local" {
		t.Errorf("Get calls = %v", client.gets)
	}
}

func TestRedisStore_LoadRoundTrip(t *testing.T) {
	at := time.Now().Truncate(time.Second)
	data, err := json.Marshal(testSnap("https://example.com", map[string]string{"lang": "en"}, at))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	client := &mockRedisClient{
		getResp: map[string]mockRedisStringCmd{
			"tabsync:mirror:https://example.com:local": {data: data},
		},
	}
	store := NewRedisStore(client)

	snap, err := store.Load(context.Background(), "https://example.com", storage.AreaLocal)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if snap == nil {
		t.Fatal("Load() got nil")
	}
	if snap.Items["lang"] != "en" {
		t.Errorf("Items = %v", snap.Items)
	}
	if !snap.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", snap.UpdatedAt, at)
	}
}

func TestRedisStore_LoadCorrupt(t *testing.T) {
	client := &mockRedisClient{
		getResp: map[string]mockRedisStringCmd{
			"tabsync:mirror:o:local": {data: []byte("{not json")},
		},
	}
	store := NewRedisStore(client)

	if _, err := store.Load(context.Background(), "o", storage.AreaLocal); err == nil {
		t.Error("Load() of corrupt payload expected error, got nil")
	}
}

func TestRedisStore_Delete(t *testing.T) {
	client := &mockRedisClient{}
	store := NewRedisStore(client)

	if err := store.Delete(context.Background(), "https://example.com", storage.AreaSession); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.dels) != 1 {
		t.Fatalf("Del calls got %d want 1", len(client.dels))
	}
	if got := client.dels[0][0]; got != "tabsync:mirror:https://example.com:session" {
		t.Errorf("Del key got %q", got)
	}
}

func TestRedisStore_Closed(t *testing.T) {
	store := NewRedisStore(&mockRedisClient{})
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, testSnap("o", nil, time.Now())); err == nil {
		t.Error("Save() expected error after Close, got nil")
	}
	if _, err := store.Load(ctx, "o", storage.AreaLocal); err == nil {
		t.Error("Load() expected error after Close, got nil")
	}
	if err := store.Delete(ctx, "o", storage.AreaLocal); err == nil {
		t.Error("Delete() expected error after Close, got nil")
	}
}
