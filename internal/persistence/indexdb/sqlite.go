package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/atomic"
	_ "modernc.org/sqlite"

	plog "thingcraft.ai/internal/persistence/log"
	"thingcraft.ai/internal/persistence/snapshot"
)

// SQLiteIndex is a queryable secondary index of builds and snapshots. Writes
// are queued and applied by a single goroutine; when the queue is full the
// entry is dropped and counted. The JSONL audit log remains the source of
// truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against Close closing it.
	mu     sync.RWMutex
	closed atomic.Bool

	dropBuild    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqBuild reqKind = iota + 1
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	build    plog.BuildEntry
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Path       string
	Kind       string
	ID         string
	Digest     uint64
	Voxels     int
	RecordedAt string
}

// Stats reports queue health.
type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropBuildTotal    uint64
	DropSnapshotTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS builds (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			scene TEXT NOT NULL,
			thing TEXT NOT NULL,
			name TEXT,
			action TEXT NOT NULL,
			min_x INTEGER NOT NULL,
			min_y INTEGER NOT NULL,
			min_z INTEGER NOT NULL,
			max_x INTEGER NOT NULL,
			max_y INTEGER NOT NULL,
			max_z INTEGER NOT NULL,
			voxels INTEGER NOT NULL,
			digest TEXT,
			message TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_builds_thing ON builds(thing, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_builds_scene ON builds(scene, seq);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			digest TEXT NOT NULL,
			voxels INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteBuild queues a lifecycle entry. It never blocks.
func (s *SQLiteIndex) WriteBuild(entry plog.BuildEntry) error {
	if s == nil {
		return nil
	}
	if sent, open := s.trySend(req{kind: reqBuild, build: entry}); open && !sent {
		s.dropBuild.Inc()
	}
	return nil
}

// trySend queues r without blocking. open is false once Close has run.
func (s *SQLiteIndex) trySend(r req) (sent, open bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return false, false
	}
	select {
	case s.ch <- r:
		return true, true
	default:
		return false, true
	}
}

// RecordSnapshot queues a snapshot file row.
func (s *SQLiteIndex) RecordSnapshot(path string, h snapshot.Header, voxels int) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Path:       path,
		Kind:       h.Kind,
		ID:         h.ID,
		Digest:     h.Digest,
		Voxels:     voxels,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if sent, open := s.trySend(req{kind: reqSnapshot, snapshot: r}); open && !sent {
		s.dropSnapshot.Inc()
	}
}

// Sync blocks until every entry queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	if open, err := s.send(ctx, req{kind: reqSync, done: done}); !open || err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send queues r, waiting for room until ctx ends. The loop keeps draining
// ch while Close waits for the lock, so holding it here cannot deadlock.
func (s *SQLiteIndex) send(ctx context.Context, r req) (open bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return false, nil
	}
	select {
	case s.ch <- r:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropBuildTotal:    s.dropBuild.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// BuildRow is one indexed lifecycle entry.
type BuildRow struct {
	Seq    int64
	Scene  string
	Thing  string
	Action string
	Min    [3]int
	Max    [3]int
	Voxels int
	Digest string
}

// Builds returns the lifecycle history of thing, oldest first.
func (s *SQLiteIndex) Builds(ctx context.Context, thing string) ([]BuildRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq,scene,thing,action,min_x,min_y,min_z,max_x,max_y,max_z,voxels,COALESCE(digest,'')
		FROM builds WHERE thing=? ORDER BY seq`, thing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BuildRow
	for rows.Next() {
		var r BuildRow
		if err := rows.Scan(&r.Seq, &r.Scene, &r.Thing, &r.Action,
			&r.Min[0], &r.Min[1], &r.Min[2], &r.Max[0], &r.Max[1], &r.Max[2],
			&r.Voxels, &r.Digest); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertBuild, _ := s.db.Prepare(`INSERT INTO builds(at,scene,thing,name,action,min_x,min_y,min_z,max_x,max_y,max_z,voxels,digest,message) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,kind,id,digest,voxels,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertBuild != nil {
			_ = insertBuild.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqBuild:
			b := r.build
			if insertBuild != nil {
				if _, err := tx.Stmt(insertBuild).Exec(
					b.Time.UTC().Format(time.RFC3339Nano),
					b.Scene, b.Thing, b.Name, b.Action,
					b.Min[0], b.Min[1], b.Min[2],
					b.Max[0], b.Max[1], b.Max[2],
					b.Voxels, b.Digest, b.Message,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.Path, sn.Kind, sn.ID,
					fmt.Sprintf("%016x", sn.Digest),
					sn.Voxels, sn.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
