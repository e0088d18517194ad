package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"notathome.app/internal/ledger"
	"notathome.app/internal/session"
)

const pgErrUniqueViolation = "23505"

// psq builds PostgreSQL statements with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var sessionColumns = []string{
	"id", "code", "congregation_id", "created_by",
	"map_number", "is_active", "created_at", "expires_at",
}

type Store struct {
	db *sql.DB
}

var (
	_ session.Store = (*Store)(nil)
	_ ledger.Store  = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection, for tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, code, congregation_id, created_by, map_number, is_active, created_at, expires_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sess.ID, sess.Code, sess.CongregationID, sess.CreatedBy, sess.MapNumber, sess.IsActive, sess.CreatedAt, sess.ExpiresAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return session.ErrCodeTaken
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, code, congregation_id, created_by, map_number, is_active, created_at, expires_at
		from sessions where id=$1
	`, id)
	return scanSession(row)
}

func (s *Store) FindActiveSessionByCode(ctx context.Context, code string, now time.Time) (session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, code, congregation_id, created_by, map_number, is_active, created_at, expires_at
		from sessions where code=$1 and is_active and expires_at > $2
	`, code, now)
	return scanSession(row)
}

func (s *Store) ListActiveSessions(ctx context.Context, f session.Filter, now time.Time) ([]session.Session, error) {
	qb := psq.Select(sessionColumns...).From("sessions").
		Where(sq.Eq{"congregation_id": f.CongregationID}).
		Where(sq.Eq{"is_active": true}).
		Where(sq.Gt{"expires_at": now})
	if f.CreatedBy != "" {
		qb = qb.Where(sq.Eq{"created_by": f.CreatedBy})
	}
	qb = qb.OrderBy("created_at desc", "id desc")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		var sess session.Session
		if err := rows.Scan(&sess.ID, &sess.Code, &sess.CongregationID, &sess.CreatedBy,
			&sess.MapNumber, &sess.IsActive, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update sessions set is_active=false where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	// address rows go with the session via on delete cascade
	_, err := s.db.ExecContext(ctx, `delete from sessions where id=$1`, id)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) InsertAddress(ctx context.Context, e *ledger.AddressEntry) error {
	// the select guard makes insert-into-dead-session atomic: no row comes
	// back for absent, deactivated, or expired sessions
	res, err := s.db.ExecContext(ctx, `
		insert into addresses (id, session_id, block_number, address, latitude, longitude, created_by, created_at, updated_at)
		select $1, s.id, $3, $4, $5, $6, $7, $8, $9
		from sessions s
		where s.id=$2 and s.is_active and s.expires_at > now()
	`, e.ID, e.SessionID, e.BlockNumber, e.Address, e.Latitude, e.Longitude, e.CreatedBy, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) ListAddresses(ctx context.Context, sessionID string) ([]ledger.AddressEntry, error) {
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, session_id, block_number, address, latitude, longitude, created_by, created_at, updated_at
		from addresses
		where session_id=$1
		order by block_number asc, created_at asc, id asc
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.AddressEntry
	for rows.Next() {
		var e ledger.AddressEntry
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.BlockNumber, &e.Address,
			&lat, &lon, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if lat.Valid {
			v := lat.Float64
			e.Latitude = &v
		}
		if lon.Valid {
			v := lon.Float64
			e.Longitude = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountAddresses(ctx context.Context, sessionID string) (int, error) {
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from addresses where session_id=$1`, sessionID).Scan(&n)
	return n, err
}

// sessionExists distinguishes an empty ledger from a torn-down session.
func (s *Store) sessionExists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `select 1 from sessions where id=$1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	return err
}

func scanSession(row *sql.Row) (session.Session, error) {
	var sess session.Session
	err := row.Scan(&sess.ID, &sess.Code, &sess.CongregationID, &sess.CreatedBy,
		&sess.MapNumber, &sess.IsActive, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// --- helpers ---
func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
