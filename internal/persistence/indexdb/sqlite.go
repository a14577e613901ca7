package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mxn2020/3d-community-sub001/internal/audit"
	"github.com/mxn2020/3d-community-sub001/internal/plots/geometry"
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
	"github.com/mxn2020/3d-community-sub001/internal/provider"
)

// SQLiteStore is the parcel read model the purchase flow looks universes up in. It
// also keeps a queryable trail of selection events, written by a background loop.
type SQLiteStore struct {
	db    *sql.DB
	reach float64

	// sendMu is held shared across the closed check and the send in RecordSelection,
	// and exclusively while Close closes ch.
	sendMu sync.RWMutex
	ch     chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type Option func(*SQLiteStore)

// WithReach sets how far from the anchor, on each axis, adjacent parcels are looked up.
func WithReach(reach float64) Option {
	return func(s *SQLiteStore) {
		if reach > 0 {
			s.reach = reach
		}
	}
}

func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
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

	s := &SQLiteStore{
		db:    db,
		reach: 36,
		ch:    make(chan audit.Event, 4096),
	}
	for _, opt := range opts {
		opt(s)
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
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS parcels (
			id TEXT PRIMARY KEY,
			community_id TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL DEFAULT 0,
			owner_id TEXT,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS parcels_community_xy ON parcels(community_id, x, y);`,
		`CREATE TABLE IF NOT EXISTS selection_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			anchor_id TEXT NOT NULL,
			viewer_id TEXT NOT NULL,
			parcel_id TEXT NOT NULL,
			action TEXT NOT NULL,
			success INTEGER NOT NULL,
			reason TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS selection_events_anchor ON selection_events(anchor_id, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		s.sendMu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.sendMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts selection events discarded because the writer fell behind.
func (s *SQLiteStore) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteStore) UpsertParcels(ctx context.Context, communityID string, ps []parcel.Parcel) error {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return fmt.Errorf("upsert parcels: empty community id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO parcels(id,community_id,x,y,z,owner_id,updated_at) VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET community_id=excluded.community_id,x=excluded.x,y=excluded.y,z=excluded.z,owner_id=excluded.owner_id,updated_at=excluded.updated_at`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, p := range ps {
		if _, err := stmt.ExecContext(ctx, p.ID, communityID, p.X, p.Y, p.Z, nullable(p.OwnerID), now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert parcel %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// SetOwner records a sale (or release, with an empty owner) of one parcel.
func (s *SQLiteStore) SetOwner(ctx context.Context, parcelID, ownerID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE parcels SET owner_id=?, updated_at=? WHERE id=?`,
		nullable(strings.TrimSpace(ownerID)), time.Now().UTC().Format(time.RFC3339Nano), parcelID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", provider.ErrNotFound, parcelID)
	}
	return nil
}

func (s *SQLiteStore) Anchor(ctx context.Context, anchorID string) (parcel.Parcel, error) {
	p, _, err := s.lookup(ctx, anchorID)
	return p, err
}

// Adjacent returns the parcels of the anchor's community within reach on both axes.
func (s *SQLiteStore) Adjacent(ctx context.Context, anchorID string) ([]parcel.Parcel, error) {
	anchor, communityID, err := s.lookup(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	r := s.reach + geometry.Epsilon
	rows, err := s.db.QueryContext(ctx, `SELECT id,x,y,z,owner_id FROM parcels
		WHERE community_id=? AND id<>? AND x BETWEEN ? AND ? AND y BETWEEN ? AND ?
		ORDER BY id`,
		communityID, anchor.ID, anchor.X-r, anchor.X+r, anchor.Y-r, anchor.Y+r)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []parcel.Parcel
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Parcels(ctx context.Context, communityID string) ([]parcel.Parcel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,x,y,z,owner_id FROM parcels WHERE community_id=? ORDER BY id`, communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []parcel.Parcel
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) lookup(ctx context.Context, id string) (parcel.Parcel, string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,x,y,z,owner_id,community_id FROM parcels WHERE id=?`, id)
	var (
		p           parcel.Parcel
		owner       sql.NullString
		communityID string
	)
	if err := row.Scan(&p.ID, &p.X, &p.Y, &p.Z, &owner, &communityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return parcel.Parcel{}, "", fmt.Errorf("%w: %s", provider.ErrNotFound, id)
		}
		return parcel.Parcel{}, "", err
	}
	p.OwnerID = owner.String
	return p, communityID, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanParcel(sc scanner) (parcel.Parcel, error) {
	var (
		p     parcel.Parcel
		owner sql.NullString
	)
	if err := sc.Scan(&p.ID, &p.X, &p.Y, &p.Z, &owner); err != nil {
		return parcel.Parcel{}, err
	}
	p.OwnerID = owner.String
	return p, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RecordSelection queues e for the writer loop. Events are dropped, not blocked on,
// when the loop falls behind; the JSONL audit log remains the source of truth.
func (s *SQLiteStore) RecordSelection(e audit.Event) error {
	if s == nil {
		return nil
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
	return nil
}

func (s *SQLiteStore) SelectionEvents(ctx context.Context, anchorID string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT raw_json FROM selection_events WHERE anchor_id=? ORDER BY seq LIMIT ?`, anchorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []audit.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e audit.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loop() {
	ctx := context.Background()

	insert, _ := s.db.Prepare(`INSERT INTO selection_events(time,session_id,kind,anchor_id,viewer_id,parcel_id,action,success,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 500 * time.Millisecond
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

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			if insert == nil {
				continue
			}
			begin()
			if tx == nil {
				continue
			}
			raw, _ := json.Marshal(e)
			success := 0
			if e.Success {
				success = 1
			}
			if _, err := tx.Stmt(insert).Exec(e.Time, e.SessionID, e.Kind, e.AnchorID, e.ViewerID, e.ParcelID, e.Action, success, e.Reason, string(raw)); err != nil {
				_ = tx.Rollback()
				tx = nil
				continue
			}
			opCount++
			if opCount >= commitEvery {
				commit()
			}
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}
