package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/haystack"
)

// ErrNotWritable is returned by PointWrite for records without the point
// marker.
var ErrNotWritable = errors.New("record is not a point")

// MaxWriteLevel is the lowest priority level of a point's priority array.
const MaxWriteLevel = 17

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Put inserts or replaces records. Every record needs a Ref id. New
// records are appended to the read order; replaced ones keep their place.
func (s *Store) Put(ctx context.Context, recs ...haystack.Dict) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for i, rec := range recs {
		id, ok := rec.ID()
		if !ok || id.ID == "" {
			return fmt.Errorf("put: record %d has no id", i)
		}
		if err := s.putTx(ctx, tx, id.ID, rec); err != nil {
			return fmt.Errorf("put @%s: %w", id.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put: commit: %w", err)
	}
	return nil
}

func (s *Store) putTx(ctx context.Context, q querier, id string, rec haystack.Dict) error {
	tags, err := marshalTags(rec)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO entities (id, seq, tags, mod)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM entities), ?, ?)
		ON CONFLICT(id) DO UPDATE SET tags = excluded.tags, mod = excluded.mod
	`, id, tags, s.now().UnixMilli())
	return err
}

// Remove deletes a record and its priority array.
func (s *Store) Remove(ctx context.Context, id haystack.Ref) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id.ID)
	if err != nil {
		return fmt.Errorf("remove @%s: %w", id.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("remove @%s: %w", id.ID, ErrNotFound)
	}
	return nil
}

// PointWrite sets one level of a point's priority array. A nil, Null or
// Remove value releases the level. Level 0 means client.DefaultWriteLevel. A
// positive Duration makes the write expire.
//
// Returns the updated record.
func (s *Store) PointWrite(ctx context.Context, id haystack.Ref, value haystack.Value, opts client.WriteOptions) (haystack.Grid, error) {
	level := opts.Level
	if level == 0 {
		level = client.DefaultWriteLevel
	}
	if level < 1 || level > MaxWriteLevel {
		return nil, fmt.Errorf("write @%s: level %d out of range 1-%d", id.ID, level, MaxWriteLevel)
	}
	if err := s.expireWrites(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("write @%s: begin tx: %w", id.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	rec, ok, err := s.lookupIn(ctx, tx, id.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("write @%s: %w", id.ID, ErrNotFound)
	}
	if !rec.Has("point") {
		return nil, fmt.Errorf("write @%s: %w", id.ID, ErrNotWritable)
	}

	if isRelease(value) {
		_, err = tx.ExecContext(ctx, "DELETE FROM point_writes WHERE id = ? AND level = ?", id.ID, level)
	} else {
		var val string
		val, err = marshalValue(value)
		if err != nil {
			return nil, fmt.Errorf("write @%s: %w", id.ID, err)
		}
		var expires any
		if opts.Duration > 0 {
			expires = s.now().Add(opts.Duration).UnixMilli()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO point_writes (id, level, val, who, expires_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id, level) DO UPDATE SET
				val = excluded.val, who = excluded.who, expires_at = excluded.expires_at
		`, id.ID, level, val, opts.Who, expires)
	}
	if err != nil {
		return nil, fmt.Errorf("write @%s level %d: %w", id.ID, level, err)
	}

	rec, err = s.refreshPoint(ctx, tx, id.ID, rec)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("write @%s: commit: %w", id.ID, err)
	}
	s.logger.Debug("point written", "id", id.ID, "level", level, "who", opts.Who, "curVal", rec.Get("curVal"))
	return haystack.Grid{rec}, nil
}

func isRelease(v haystack.Value) bool {
	switch v.(type) {
	case nil, haystack.Null, haystack.Remove:
		return true
	}
	return false
}

// WriteArray returns a point's priority array: one row per level with
// level, levelDis, and val, who and expires for occupied levels.
func (s *Store) WriteArray(ctx context.Context, id haystack.Ref) (haystack.Grid, error) {
	if err := s.expireWrites(ctx); err != nil {
		return nil, err
	}
	if _, ok, err := s.lookup(ctx, id.ID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("write array @%s: %w", id.ID, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT level, val, who, expires_at FROM point_writes WHERE id = ? ORDER BY level ASC", id.ID)
	if err != nil {
		return nil, fmt.Errorf("write array @%s: %w", id.ID, err)
	}
	defer rows.Close()

	out := make(haystack.Grid, MaxWriteLevel)
	for i := range out {
		out[i] = haystack.Dict{
			"level":    haystack.Number{Val: float64(i + 1)},
			"levelDis": haystack.Str(levelDis(i + 1)),
		}
	}
	for rows.Next() {
		var (
			level   int
			val     string
			who     string
			expires sql.NullInt64
		)
		if err := rows.Scan(&level, &val, &who, &expires); err != nil {
			return nil, fmt.Errorf("scan write level: %w", err)
		}
		v, err := unmarshalValue(val)
		if err != nil {
			return nil, err
		}
		row := out[level-1]
		row["val"] = v
		if who != "" {
			row["who"] = haystack.Str(who)
		}
		if expires.Valid {
			row["expires"] = haystack.Number{Val: float64(expires.Int64-s.now().UnixMilli()) / 1000, Unit: "s"}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate write levels: %w", err)
	}
	return out, nil
}

func levelDis(level int) string {
	switch level {
	case 1:
		return "1 (emergency)"
	case 8:
		return "8 (manual)"
	case 16:
		return "16 (default)"
	case 17:
		return "17 (relinquish default)"
	}
	return strconv.Itoa(level)
}

// refreshPoint recomputes curVal, writeVal and writeLevel from the
// highest priority occupied level. With an empty array curVal falls back
// to relinquishDefault, or is removed.
func (s *Store) refreshPoint(ctx context.Context, q querier, id string, rec haystack.Dict) (haystack.Dict, error) {
	var (
		level int
		val   string
	)
	err := q.QueryRowContext(ctx,
		"SELECT level, val FROM point_writes WHERE id = ? ORDER BY level ASC LIMIT 1", id).Scan(&level, &val)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec = rec.With("writeVal", nil).With("writeLevel", nil)
		rec = rec.With("curVal", rec.Get("relinquishDefault"))
	case err != nil:
		return nil, fmt.Errorf("refresh @%s: %w", id, err)
	default:
		v, err := unmarshalValue(val)
		if err != nil {
			return nil, fmt.Errorf("refresh @%s: %w", id, err)
		}
		rec = rec.With("curVal", v).With("writeVal", v).With("writeLevel", haystack.Number{Val: float64(level)})
	}
	if err := s.putTx(ctx, q, id, rec); err != nil {
		return nil, fmt.Errorf("refresh @%s: %w", id, err)
	}
	return rec, nil
}

// expireWrites drops priority levels whose duration has passed and
// refreshes the affected points.
func (s *Store) expireWrites(ctx context.Context) error {
	now := s.now().UnixMilli()

	var pending int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM point_writes WHERE expires_at IS NOT NULL AND expires_at <= ?", now,
	).Scan(&pending); err != nil {
		return fmt.Errorf("expire writes: %w", err)
	}
	if pending == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("expire writes: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	ids, err := expiredIDs(ctx, tx, now)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM point_writes WHERE expires_at IS NOT NULL AND expires_at <= ?", now); err != nil {
		return fmt.Errorf("expire writes: %w", err)
	}
	for _, id := range ids {
		rec, ok, err := s.lookupIn(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := s.refreshPoint(ctx, tx, id, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("expire writes: commit: %w", err)
	}
	s.logger.Debug("expired point writes", "points", len(ids))
	return nil
}

func expiredIDs(ctx context.Context, q querier, now int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT id FROM point_writes
		WHERE expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY id ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("expire writes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("expire writes: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TagCommit sets tag on a record, or removes it when value is nil or
// Remove. A commit that changes nothing does not touch the record.
// Returns the updated record.
func (s *Store) TagCommit(ctx context.Context, id haystack.Ref, tag string, value haystack.Value) (haystack.Grid, error) {
	if tag == "" || tag == "id" {
		return nil, fmt.Errorf("commit @%s: cannot commit tag %q", id.ID, tag)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("commit @%s: begin tx: %w", id.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	rec, ok, err := s.lookupIn(ctx, tx, id.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("commit @%s: %w", id.ID, ErrNotFound)
	}

	next := rec.With(tag, value)
	if haystack.Equal(rec, next) {
		return haystack.Grid{rec}, nil
	}
	if err := s.putTx(ctx, tx, id.ID, next); err != nil {
		return nil, fmt.Errorf("commit @%s: %w", id.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit @%s: commit: %w", id.ID, err)
	}
	s.logger.Debug("tag committed", "id", id.ID, "tag", tag)
	return haystack.Grid{next}, nil
}
