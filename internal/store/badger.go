package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for the embedded driver.
const (
	apptKeyPrefix        = "appt:"
	apptParentKeyPrefix  = "appt_parent:"
	msgKeyPrefix         = "msg:"
	msgApptKeyPrefix     = "msg_appt:"
	guardCoachKeyPrefix  = "guard_coach:"
	guardClientKeyPrefix = "guard_client:"
)

// conflictRetryBudget bounds how long InTx keeps retrying a transaction
// that loses write conflicts. Running out is an internal failure, not a
// booking conflict.
const conflictRetryBudget = 10 * time.Second

// errGuardWait aborts an attempt whose snapshot predates the commit of the
// previous guard holder. The guards stay held into the next attempt.
var errGuardWait = errors.New("badger: waited for participant guard")

// Badger is an embedded Store. Booking transactions run under badger's
// serializable snapshot isolation. LockParticipants additionally holds an
// in-process lock per coach and client for the whole of InTx, so bookings of
// the same participant run one after another instead of failing each other.
type Badger struct {
	db     *badger.DB
	guards *keyLocks
	badgerQuerier
}

// OpenBadger opens a store in dir, or an in-memory store when dir is empty.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return NewBadger(db), nil
}

func NewBadger(db *badger.DB) *Badger {
	b := &Badger{db: db, guards: newKeyLocks()}
	b.badgerQuerier = badgerQuerier{view: b.db.View}
	return b
}

func newRetryPolicy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Millisecond
	bo.MaxInterval = 100 * time.Millisecond
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = conflictRetryBudget
	return backoff.WithContext(bo, ctx)
}

// InTx retries on badger.ErrConflict with jittered backoff. Each retry sees
// the winner's commit, so a real overlap surfaces from the caller's own
// conflict check rather than from here.
func (b *Badger) InTx(ctx context.Context, fn func(tx Tx) error) error {
	held := &heldGuards{locks: b.guards}
	defer held.release()

	attempts := 0
	op := func() error {
		for {
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			attempts++
			err := b.db.Update(func(txn *badger.Txn) error {
				return fn(&badgerTx{badgerQuerier: badgerQuerier{view: inTxn(txn)}, txn: txn, held: held})
			})
			switch {
			case err == nil:
				return nil
			case errors.Is(err, errGuardWait):
				continue
			case errors.Is(err, badger.ErrConflict):
				return err
			default:
				return backoff.Permanent(err)
			}
		}
	}
	err := backoff.Retry(op, newRetryPolicy(ctx))
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("badger: transaction still conflicting after %d attempts: %w", attempts, err)
	}
	return err
}

func (b *Badger) Ping(context.Context) error {
	if b.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

func (b *Badger) Close() error { return b.db.Close() }

// inTxn adapts an open transaction to the View signature so reads made
// inside InTx join it instead of opening a new snapshot.
func inTxn(txn *badger.Txn) func(func(*badger.Txn) error) error {
	return func(fn func(*badger.Txn) error) error { return fn(txn) }
}

type badgerTx struct {
	badgerQuerier
	txn  *badger.Txn
	held *heldGuards
}

// LockParticipants takes the participant guards, then reads and rewrites one
// guard key per participant so that the transaction order is also visible to
// badger's conflict detection.
func (t *badgerTx) LockParticipants(_ context.Context, coachID string, clientID *string) error {
	keys := []string{guardCoachKeyPrefix + coachID}
	if clientID != nil && *clientID != "" {
		keys = append(keys, guardClientKeyPrefix+*clientID)
	}
	if t.held.acquire(keys) {
		return errGuardWait
	}
	for _, k := range keys {
		var n uint64
		item, err := t.txn.Get([]byte(k))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return fmt.Errorf("read guard: %w", err)
		default:
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &n) }); err != nil {
				return fmt.Errorf("decode guard: %w", err)
			}
		}
		data, _ := json.Marshal(n + 1)
		if err := t.txn.Set([]byte(k), data); err != nil {
			return fmt.Errorf("write guard: %w", err)
		}
	}
	return nil
}

// keyLocks is a table of mutexes created on demand and dropped when unused.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks { return &keyLocks{m: make(map[string]*keyLock)} }

// lock blocks until key is free and reports whether it had to wait.
func (k *keyLocks) lock(key string) (waited bool) {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	if l.mu.TryLock() {
		return false
	}
	l.mu.Lock()
	return true
}

func (k *keyLocks) unlock(key string) {
	k.mu.Lock()
	l := k.m[key]
	l.refs--
	if l.refs == 0 {
		delete(k.m, key)
	}
	k.mu.Unlock()
	l.mu.Unlock()
}

// heldGuards tracks the keys one InTx call holds across its attempts.
type heldGuards struct {
	locks *keyLocks
	keys  []string
}

// acquire locks the keys not yet held, in sorted order so two transactions
// never wait on each other in opposite order.
func (h *heldGuards) acquire(keys []string) (waited bool) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	for _, k := range keys {
		if slices.Contains(h.keys, k) {
			continue
		}
		if h.locks.lock(k) {
			waited = true
		}
		h.keys = append(h.keys, k)
	}
	return waited
}

func (h *heldGuards) release() {
	for _, k := range h.keys {
		h.locks.unlock(k)
	}
	h.keys = nil
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error { return json.Unmarshal(val, v) })
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

// keysWithPrefix lists keys under prefix without loading values.
func keysWithPrefix(txn *badger.Txn, prefix string) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Rewind(); it.Valid(); it.Next() {
		out = append(out, string(it.Item().KeyCopy(nil)))
	}
	return out
}
