package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"feedq/models"
	"feedq/store"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

var feedColumns = []string{"id", "owner", "seen", "available", "version", "created_at", "updated_at"}

// DB is the SQL backend shared by the sqlite and postgres dialects
type DB struct {
	db     *sql.DB
	flavor sqlbuilder.Flavor
	now    func() time.Time
}

var _ store.Backend = (*DB)(nil)

// OpenSQLite opens the database file. Run Migrate first.
func OpenSQLite(path string) (*DB, error) {
	conn, err := sqliteConnection(path)
	if err != nil {
		return nil, err
	}
	return &DB{db: conn, flavor: sqlbuilder.SQLite, now: time.Now}, nil
}

// OpenPostgres connects with a URL built by PostgresURL. Run Migrate first.
func OpenPostgres(connString string) (*DB, error) {
	conn, err := postgresConnection(connString)
	if err != nil {
		return nil, err
	}
	return &DB{db: conn, flavor: sqlbuilder.PostgreSQL, now: time.Now}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Record store

func (db *DB) Find(ctx context.Context, filter store.Filter) (*models.Feed, error) {
	sb := db.selectFeeds(filter)
	sb.Limit(1)
	query, args := sb.Build()

	feed, err := db.scanFeed(db.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return feed, nil
}

func (db *DB) FindAll(ctx context.Context, filter store.Filter) ([]*models.Feed, error) {
	query, args := db.selectFeeds(filter).Build()

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	feeds := []*models.Feed{}
	for rows.Next() {
		feed, err := db.scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

func (db *DB) Insert(ctx context.Context, feed *models.Feed) (string, error) {
	seen, err := db.idsValue(feed.Seen)
	if err != nil {
		return "", err
	}
	available, err := db.idsValue(feed.Available)
	if err != nil {
		return "", err
	}
	now := db.now().UnixMilli()

	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("feeds").
		Cols(feedColumns...).
		Values(feed.ID, feed.Owner, seen, available, 1, now, now).
		SQL("ON CONFLICT (owner) DO NOTHING")
	query, args := ib.Build()

	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("insert error: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("insert error: %w", err)
	}
	if inserted == 0 {
		return "", store.ErrDuplicate
	}

	return feed.ID, nil
}

func (db *DB) Update(ctx context.Context, filter store.Filter, feed *models.Feed) error {
	if filter.IsEmpty() {
		return store.ErrEmptyFilter
	}

	seen, err := db.idsValue(feed.Seen)
	if err != nil {
		return err
	}
	available, err := db.idsValue(feed.Available)
	if err != nil {
		return err
	}

	ub := db.flavor.NewUpdateBuilder()
	ub.Update("feeds").Set(
		ub.Assign("seen", seen),
		ub.Assign("available", available),
		ub.Assign("updated_at", db.now().UnixMilli()),
		ub.Incr("version"),
	)
	ub.Where(filterConditions(filter, ub.Equal)...)
	query, args := ub.Build()

	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	if updated == 0 {
		if filter.Version != 0 {
			return store.ErrVersionConflict
		}
		return store.ErrNoRecord
	}

	return nil
}

func (db *DB) Remove(ctx context.Context, filter store.Filter) (int64, error) {
	if filter.IsEmpty() {
		return 0, store.ErrEmptyFilter
	}

	del := db.flavor.NewDeleteBuilder()
	del.DeleteFrom("feeds").Where(filterConditions(filter, del.Equal)...)
	query, args := del.Build()

	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error: %w", err)
	}
	return res.RowsAffected()
}

// Content catalog

func (db *DB) AddContent(ctx context.Context, id string) (bool, error) {
	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("content").
		Cols("id", "created_at").
		Values(id, db.now().UnixMilli()).
		SQL("ON CONFLICT (id) DO NOTHING")
	query, args := ib.Build()

	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert error: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert error: %w", err)
	}

	log.WithFields(log.Fields{
		"id":    id,
		"added": inserted > 0,
	}).Debug("Registered content")

	return inserted > 0, nil
}

func (db *DB) RecentContent(ctx context.Context, n int) ([]string, error) {
	ids := []string{}
	if n <= 0 {
		return ids, nil
	}

	sb := db.flavor.NewSelectBuilder()
	sb.Select("id").From("content").OrderBy("seq").Desc().Limit(n)
	query, args := sb.Build()

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) selectFeeds(filter store.Filter) *sqlbuilder.SelectBuilder {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds")
	if conditions := filterConditions(filter, sb.Equal); len(conditions) > 0 {
		sb.Where(conditions...)
	}
	sb.OrderBy("created_at", "owner").Asc()
	return sb
}

// filterConditions turns the non-zero filter fields into equality conditions
func filterConditions(filter store.Filter, equal func(field string, value interface{}) string) []string {
	var conditions []string
	if filter.ID != "" {
		conditions = append(conditions, equal("id", filter.ID))
	}
	if filter.Owner != "" {
		conditions = append(conditions, equal("owner", filter.Owner))
	}
	if filter.Version != 0 {
		conditions = append(conditions, equal("version", filter.Version))
	}
	return conditions
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) scanFeed(row rowScanner) (*models.Feed, error) {
	var (
		feed      models.Feed
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&feed.ID,
		&feed.Owner,
		db.idsDest(&feed.Seen),
		db.idsDest(&feed.Available),
		&feed.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if feed.Seen == nil {
		feed.Seen = []string{}
	}
	if feed.Available == nil {
		feed.Available = []string{}
	}
	feed.CreatedAt = time.UnixMilli(createdAt)
	feed.UpdatedAt = time.UnixMilli(updatedAt)
	return &feed, nil
}

// Postgres keeps id collections as TEXT[]; SQLite as JSON text

func (db *DB) idsValue(ids []string) (interface{}, error) {
	if ids == nil {
		ids = []string{}
	}
	if db.flavor == sqlbuilder.PostgreSQL {
		return pq.Array(ids), nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode ids: %w", err)
	}
	return string(raw), nil
}

func (db *DB) idsDest(dst *[]string) interface{} {
	if db.flavor == sqlbuilder.PostgreSQL {
		return pq.Array(dst)
	}
	return jsonIDs{dst: dst}
}

type jsonIDs struct {
	dst *[]string
}

func (j jsonIDs) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*j.dst = []string{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported id list type %T", src)
	}

	ids := []string{}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("decode ids: %w", err)
	}
	*j.dst = ids
	return nil
}
