package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/refresh"
)

func newRedisStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, "test"), mr, rdb
}

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func testRecord(hash, user, family string, gen int) refresh.Record {
	return refresh.Record{
		TokenHash:  hash,
		UserID:     user,
		FamilyID:   family,
		Generation: gen,
		CreatedAt:  base,
		ExpiresAt:  base.Add(time.Hour),
		ClientIP:   "198.51.100.7",
		UserAgent:  "test-agent",
	}
}

func TestCreateAndFind(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	ctx := context.Background()

	rec := testRecord("h1", "u1", "f1", 1)
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, rec); !errors.Is(err, refresh.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := store.FindByHash(ctx, "h1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.UserID != "u1" || got.FamilyID != "f1" || got.Generation != 1 || got.Revoked {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.ExpiresAt.Equal(rec.ExpiresAt) || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("timestamps not preserved: %+v", got)
	}
	if got.ClientIP != "198.51.100.7" || got.UserAgent != "test-agent" {
		t.Fatalf("metadata not preserved: %+v", got)
	}

	if _, err := store.FindByHash(ctx, "missing"); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeByHashIsConditional(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	ctx := context.Background()
	_ = store.Create(ctx, testRecord("h1", "u1", "f1", 1))

	first, err := store.RevokeByHash(ctx, "h1", base)
	if err != nil || !first {
		t.Fatalf("first revoke = %v, %v", first, err)
	}
	second, err := store.RevokeByHash(ctx, "h1", base)
	if err != nil || second {
		t.Fatalf("second revoke = %v, %v", second, err)
	}
	missing, err := store.RevokeByHash(ctx, "nope", base)
	if err != nil || missing {
		t.Fatalf("missing revoke = %v, %v", missing, err)
	}
	rec, _ := store.FindByHash(ctx, "h1")
	if !rec.Revoked || !rec.RevokedAt.Equal(base) {
		t.Fatalf("expected revoked record, got %+v", rec)
	}
}

func TestRotateStatuses(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	ctx := context.Background()
	_ = store.Create(ctx, testRecord("h1", "u1", "f1", 1))

	if err := store.Rotate(ctx, "h1", testRecord("h2", "u1", "f1", 2), base); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := store.Rotate(ctx, "h1", testRecord("h3", "u1", "f1", 2), base); !errors.Is(err, refresh.ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
	if _, err := store.FindByHash(ctx, "h3"); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("lost rotation must not insert its successor")
	}
	if err := store.Rotate(ctx, "ghost", testRecord("h4", "u1", "f1", 2), base); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Rotate(ctx, "h2", testRecord("h1", "u1", "f1", 3), base); !errors.Is(err, refresh.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	h2, _ := store.FindByHash(ctx, "h2")
	if h2.Revoked {
		t.Fatalf("duplicate target must leave the presented record active")
	}
}

func TestRevokeFamilyAndUser(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	ctx := context.Background()
	_ = store.Create(ctx, testRecord("a1", "u1", "fa", 1))
	_ = store.Rotate(ctx, "a1", testRecord("a2", "u1", "fa", 2), base)
	_ = store.Create(ctx, testRecord("b1", "u1", "fb", 1))
	_ = store.Create(ctx, testRecord("c1", "u2", "fc", 1))

	n, err := store.RevokeFamily(ctx, "fa", base)
	if err != nil || n != 1 {
		t.Fatalf("revoke family = %d, %v", n, err)
	}
	n, err = store.RevokeAllByUser(ctx, "u1", base)
	if err != nil || n != 1 {
		t.Fatalf("revoke user = %d, %v", n, err)
	}
	c1, _ := store.FindByHash(ctx, "c1")
	if c1.Revoked {
		t.Fatalf("other user's record revoked")
	}
}

func TestDeleteExpiredCleansIndexes(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()

	old := testRecord("old", "u1", "f1", 1)
	fresh := testRecord("fresh", "u1", "f2", 1)
	fresh.ExpiresAt = base.Add(48 * time.Hour)
	_ = store.Create(ctx, old)
	_ = store.Create(ctx, fresh)
	_, _ = store.RevokeByHash(ctx, "old", base)

	n, err := store.DeleteExpired(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
	if mr.Exists("{test}:rt:old") {
		t.Fatalf("expired record survived")
	}
	if fam, _ := mr.Members("{test}:fam:f1"); len(fam) != 0 {
		t.Fatalf("family index still references expired record: %v", fam)
	}
	members, _ := mr.Members("{test}:usr:u1")
	if len(members) != 1 || members[0] != "fresh" {
		t.Fatalf("unexpected user index %v", members)
	}
}

func TestDeleteExpiredBatches(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	ctx := context.Background()
	for i := 0; i < pruneBatch+7; i++ {
		rec := testRecord("h"+strconv.Itoa(i), "u1", "f1", i+1)
		if err := store.Create(ctx, rec); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	n, err := store.DeleteExpired(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != pruneBatch+7 {
		t.Fatalf("expected %d deleted, got %d", pruneBatch+7, n)
	}
}

func TestUnavailableWrapsError(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	mr.Close()

	_, err := store.FindByHash(context.Background(), "h1")
	if !errors.Is(err, refresh.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := store.Create(context.Background(), testRecord("h1", "u1", "f1", 1)); !errors.Is(err, refresh.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on create, got %v", err)
	}
}

func TestManagerOverRedisDetectsReuse(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	now := time.Now()
	m, err := refresh.NewManager(store, refresh.Config{Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ctx := context.Background()

	first, _ := m.Generate(ctx, "u1")
	second, err := m.Rotate(ctx, first.Token, "u1")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	now = now.Add(refresh.DefaultRotationGrace)
	if _, err := m.Rotate(ctx, first.Token, "u1"); !errors.Is(err, refresh.ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused, got %v", err)
	}
	if ok, _ := m.Validate(ctx, second.Token, "u1"); ok {
		t.Fatalf("family should be revoked")
	}
}

func TestManagerOverRedisConcurrentRotate(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	m, _ := refresh.NewManager(store, refresh.Config{})
	ctx := context.Background()
	iss, _ := m.Generate(ctx, "u1")

	const callers = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []refresh.Issued
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			next, err := m.Rotate(ctx, iss.Token, "u1")
			if err == nil {
				mu.Lock()
				winners = append(winners, next)
				mu.Unlock()
				return
			}
			if !errors.Is(err, refresh.ErrInvalidToken) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	if len(winners) != 1 {
		t.Fatalf("expected exactly one success, got %d", len(winners))
	}
	if ok, _ := m.Validate(ctx, winners[0].Token, "u1"); !ok {
		t.Fatalf("winner's token must stay active")
	}
}

func TestKeysShareOneHashTag(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()

	_ = store.Create(ctx, testRecord("h1", "u1", "f1", 1))
	if err := store.Rotate(ctx, "h1", testRecord("h2", "u1", "f1", 2), base); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	_ = store.Create(ctx, testRecord("h3", "u2", "f2", 1))

	keys := mr.Keys()
	if len(keys) == 0 {
		t.Fatalf("expected keys to be written")
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "{test}:") {
			t.Fatalf("key %q is outside the store's hash tag", k)
		}
	}
}

func TestHashTagPrefix(t *testing.T) {
	cases := map[string]string{
		"authcore":      "{authcore}",
		"app:{tenant1}": "app:{tenant1}",
		"odd{}":         "{odd{}}",
		"half{open":     "{half{open}",
	}
	for in, want := range cases {
		if got := hashTag(in); got != want {
			t.Fatalf("hashTag(%q) = %q, want %q", in, got, want)
		}
	}
	if got := New(nil, "").expiryKey(); got != "{"+DefaultPrefix+"}:exp" {
		t.Fatalf("unexpected default expiry key %q", got)
	}
}
