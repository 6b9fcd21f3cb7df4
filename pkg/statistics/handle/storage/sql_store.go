// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	statslogutil "github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"go.uber.org/zap"
)

// Catalog tables of the SQL backend.
const (
	CreateStatsExtendedTable = `CREATE TABLE IF NOT EXISTS mysql.stats_extended (
	stat_oid BIGINT(64) NOT NULL AUTO_INCREMENT,
	name VARCHAR(32) NOT NULL,
	rel_id BIGINT(64) NOT NULL,
	kinds VARCHAR(8) NOT NULL,
	keys_json VARCHAR(255) NOT NULL,
	exprs_json LONGTEXT,
	version BIGINT(64) UNSIGNED NOT NULL,
	status TINYINT(4) NOT NULL,
	PRIMARY KEY(stat_oid),
	KEY idx_1(rel_id, status, version),
	KEY idx_2(status, version)
)`
	CreateStatsExtendedDataTable = `CREATE TABLE IF NOT EXISTS mysql.stats_extended_data (
	stat_oid BIGINT(64) NOT NULL,
	inherit TINYINT(1) NOT NULL,
	kind CHAR(1) NOT NULL,
	data LONGBLOB NOT NULL,
	version BIGINT(64) UNSIGNED NOT NULL,
	PRIMARY KEY(stat_oid, inherit, kind)
)`
	CreateStatsExtendedVersionTable = `CREATE TABLE IF NOT EXISTS mysql.stats_extended_version (
	id TINYINT(4) NOT NULL,
	version BIGINT(64) UNSIGNED NOT NULL,
	PRIMARY KEY(id)
)`
)

const selectMetaColumns = "SELECT stat_oid, name, rel_id, kinds, keys_json, exprs_json, version, status FROM mysql.stats_extended"

// SQLStore keeps the catalog in MySQL compatible tables.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore connects to the MySQL compatible server of dsn and creates
// the catalog tables when missing.
func OpenSQLStore(dsn string) (Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Annotate(err, "parse storage dsn")
	}
	cfg.ParseTime = true
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s := NewSQLStore(sql.OpenDB(connector))
	if err := s.Bootstrap(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore creates a store over an opened database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Bootstrap creates the catalog tables.
func (s *SQLStore) Bootstrap(ctx context.Context) error {
	for _, stmt := range []string{CreateStatsExtendedTable, CreateStatsExtendedDataTable, CreateStatsExtendedVersionTable} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Trace(err)
		}
	}
	_, err := s.db.ExecContext(ctx, "INSERT IGNORE INTO mysql.stats_extended_version VALUES (1, 0)")
	return errors.Trace(err)
}

// callWithTxn runs f in a transaction, committing when f succeeds.
func (s *SQLStore) callWithTxn(ctx context.Context, f func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				statslogutil.StatsLogger().Warn("rollback extended stats txn failed", zap.Error(rbErr))
			}
			return
		}
		err = errors.Trace(tx.Commit())
	}()
	return f(tx)
}

func nextVersion(ctx context.Context, tx *sql.Tx) (uint64, error) {
	if _, err := tx.ExecContext(ctx, "UPDATE mysql.stats_extended_version SET version = version + 1 WHERE id = 1"); err != nil {
		return 0, errors.Trace(err)
	}
	var version uint64
	err := tx.QueryRowContext(ctx, "SELECT version FROM mysql.stats_extended_version WHERE id = 1").Scan(&version)
	return version, errors.Trace(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(row rowScanner) (*ExtendedStatsMeta, error) {
	var (
		rec   metaRecord
		keys  string
		exprs []byte
	)
	if err := row.Scan(&rec.StatOID, &rec.Name, &rec.RelID, &rec.Kinds, &keys, &exprs, &rec.Version, &rec.Status); err != nil {
		return nil, err
	}
	k, err := decodeKeys(keys)
	if err != nil {
		return nil, err
	}
	rec.Keys, rec.Exprs = k, exprs
	return rec.toMeta()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMetas(ctx context.Context, q queryer, query string, args ...any) ([]*ExtendedStatsMeta, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	var metas []*ExtendedStatsMeta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, errors.Trace(err)
		}
		metas = append(metas, meta)
	}
	return metas, errors.Trace(rows.Err())
}

// InsertExtendedStats implements Store.
func (s *SQLStore) InsertExtendedStats(ctx context.Context, meta *ExtendedStatsMeta, ifNotExists bool) (statOID int64, err error) {
	keys, err := encodeKeys(meta.Keys)
	if err != nil {
		return 0, err
	}
	rec, err := meta.toRecord()
	if err != nil {
		return 0, err
	}
	var exprs any
	if len(rec.Exprs) > 0 {
		exprs = string(rec.Exprs)
	}
	err = s.callWithTxn(ctx, func(tx *sql.Tx) error {
		existing, err := queryMetas(ctx, tx, selectMetaColumns+" WHERE rel_id = ? AND status != ? FOR UPDATE",
			meta.RelID, uint8(ExtendedStatsDeleted))
		if err != nil {
			return err
		}
		if err := checkDuplicate(existing, meta); err != nil {
			return err
		}
		version, err := nextVersion(ctx, tx)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO mysql.stats_extended (name, rel_id, kinds, keys_json, exprs_json, version, status) VALUES (?, ?, ?, ?, ?, ?, ?)",
			meta.Name, meta.RelID, rec.Kinds, keys, exprs, version, uint8(ExtendedStatsInited))
		if err != nil {
			return errors.Trace(err)
		}
		if statOID, err = res.LastInsertId(); err != nil {
			return errors.Trace(err)
		}
		meta.StatOID, meta.Version, meta.Status = statOID, version, ExtendedStatsInited
		return nil
	})
	if ifNotExists && exterrors.ErrStatsExists.Equal(err) {
		return 0, nil
	}
	return statOID, err
}

// MarkExtendedStatsDeleted implements Store.
func (s *SQLStore) MarkExtendedStatsDeleted(ctx context.Context, relID int64, name string, ifExists bool) error {
	return s.callWithTxn(ctx, func(tx *sql.Tx) error {
		var statOID int64
		err := tx.QueryRowContext(ctx,
			"SELECT stat_oid FROM mysql.stats_extended WHERE rel_id = ? AND name = ? AND status != ? FOR UPDATE",
			relID, name, uint8(ExtendedStatsDeleted)).Scan(&statOID)
		if stderrors.Is(err, sql.ErrNoRows) {
			if ifExists {
				return nil
			}
			return exterrors.ErrStatsNotExists.GenWithStackByArgs(name)
		}
		if err != nil {
			return errors.Trace(err)
		}
		version, err := nextVersion(ctx, tx)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE mysql.stats_extended SET status = ?, version = ? WHERE stat_oid = ?",
			uint8(ExtendedStatsDeleted), version, statOID)
		return errors.Trace(err)
	})
}

// GetExtendedStats implements Store.
func (s *SQLStore) GetExtendedStats(ctx context.Context, statOID int64) (*ExtendedStatsMeta, error) {
	meta, err := scanMeta(s.db.QueryRowContext(ctx, selectMetaColumns+" WHERE stat_oid = ?", statOID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, exterrors.ErrStatsNotExists.GenWithStackByArgs(fmt.Sprintf("#%d", statOID))
	}
	return meta, errors.Trace(err)
}

// ListExtendedStats implements Store.
func (s *SQLStore) ListExtendedStats(ctx context.Context, relID int64, sinceVersion uint64) ([]*ExtendedStatsMeta, error) {
	if relID == 0 {
		return queryMetas(ctx, s.db, selectMetaColumns+" WHERE version > ? ORDER BY stat_oid", sinceVersion)
	}
	return queryMetas(ctx, s.db, selectMetaColumns+" WHERE rel_id = ? AND version > ? ORDER BY stat_oid", relID, sinceVersion)
}

// SaveExtendedStatsData implements Store.
func (s *SQLStore) SaveExtendedStatsData(ctx context.Context, statOID int64, inherit bool, kind extstats.StatsKind, data []byte) (version uint64, err error) {
	err = s.callWithTxn(ctx, func(tx *sql.Tx) error {
		var (
			name   string
			status uint8
		)
		err := tx.QueryRowContext(ctx, "SELECT name, status FROM mysql.stats_extended WHERE stat_oid = ? FOR UPDATE", statOID).
			Scan(&name, &status)
		if stderrors.Is(err, sql.ErrNoRows) {
			return exterrors.ErrStatsNotExists.GenWithStackByArgs(fmt.Sprintf("#%d", statOID))
		}
		if err != nil {
			return errors.Trace(err)
		}
		if ExtendedStatsStatus(status) == ExtendedStatsDeleted {
			return exterrors.ErrStatsNotExists.GenWithStackByArgs(name)
		}
		if version, err = nextVersion(ctx, tx); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx,
			"REPLACE INTO mysql.stats_extended_data (stat_oid, inherit, kind, data, version) VALUES (?, ?, ?, ?, ?)",
			statOID, inherit, string(kind), data, version); err != nil {
			return errors.Trace(err)
		}
		_, err = tx.ExecContext(ctx, "UPDATE mysql.stats_extended SET status = ?, version = ? WHERE stat_oid = ?",
			uint8(ExtendedStatsAnalyzed), version, statOID)
		return errors.Trace(err)
	})
	return version, err
}

// LoadExtendedStatsData implements Store.
func (s *SQLStore) LoadExtendedStatsData(ctx context.Context, statOID int64, inherit bool, kind extstats.StatsKind) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM mysql.stats_extended_data WHERE stat_oid = ? AND inherit = ? AND kind = ?",
		statOID, inherit, string(kind)).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return data, errors.Trace(err)
}

// ClearExtendedStatsData implements Store.
func (s *SQLStore) ClearExtendedStatsData(ctx context.Context, statOID int64, inherit bool) error {
	return s.callWithTxn(ctx, func(tx *sql.Tx) error {
		version, err := nextVersion(ctx, tx)
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM mysql.stats_extended_data WHERE stat_oid = ? AND inherit = ?", statOID, inherit); err != nil {
			return errors.Trace(err)
		}
		_, err = tx.ExecContext(ctx, "UPDATE mysql.stats_extended SET version = ? WHERE stat_oid = ?", version, statOID)
		return errors.Trace(err)
	})
}

// GCDeletedExtendedStats implements Store.
func (s *SQLStore) GCDeletedExtendedStats(ctx context.Context, beforeVersion uint64) (removed int, err error) {
	err = s.callWithTxn(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT stat_oid FROM mysql.stats_extended WHERE status = ? AND version < ? FOR UPDATE",
			uint8(ExtendedStatsDeleted), beforeVersion)
		if err != nil {
			return errors.Trace(err)
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return errors.Trace(err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return errors.Trace(err)
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, "DELETE FROM mysql.stats_extended_data WHERE stat_oid = ?", id); err != nil {
				return errors.Trace(err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM mysql.stats_extended WHERE stat_oid = ?", id); err != nil {
				return errors.Trace(err)
			}
		}
		removed = len(ids)
		return nil
	})
	if err == nil && removed > 0 {
		statslogutil.StatsLogger().Info("gc deleted extended stats",
			zap.Int("removed", removed), zap.Uint64("beforeVersion", beforeVersion))
	}
	return removed, err
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return errors.Trace(s.db.Close())
}
