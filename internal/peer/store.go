package peer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is the stored view of a peer connection.
type Session struct {
	ID             string
	Seq            uint64
	Remote         string
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
	Topics         []string
}

// Store persists peer sessions and their subscriptions.
type Store interface {
	SaveSession(ctx context.Context, s Session) error
	AddSubscription(ctx context.Context, sessionID, topic string, at time.Time) error
	EndSession(ctx context.Context, sessionID string, at time.Time) error
}

// SQLiteStore keeps sessions in the peer_sessions and peer_subscriptions tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// SaveSession inserts a new session row.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO peer_sessions (id, seq, remote, connected_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Seq, sess.Remote, sess.ConnectedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting peer session: %w", err)
	}
	return nil
}

// AddSubscription appends a subscription to a session. Duplicates are kept.
func (s *SQLiteStore) AddSubscription(ctx context.Context, sessionID, topic string, at time.Time) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO peer_subscriptions (session_id, topic, created_at) VALUES (?, ?, ?)`,
		sessionID, topic, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}
	return nil
}

// EndSession marks a session disconnected and drops its subscriptions.
func (s *SQLiteStore) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	res, err := tx.ExecContext(ctx,
		`UPDATE peer_sessions SET disconnected_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), sessionID,
	)
	if err != nil {
		return fmt.Errorf("ending peer session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return ErrSessionNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM peer_subscriptions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting subscriptions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session end: %w", err)
	}
	return nil
}

// EndDangling marks every session without a disconnect time as ended.
// Called at server start, after an unclean exit. Returns the number of
// sessions closed.
func (s *SQLiteStore) EndDangling(ctx context.Context, at time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM peer_subscriptions WHERE session_id IN
		 (SELECT id FROM peer_sessions WHERE disconnected_at IS NULL)`,
	); err != nil {
		return 0, fmt.Errorf("deleting dangling subscriptions: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE peer_sessions SET disconnected_at = ? WHERE disconnected_at IS NULL`,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("ending dangling sessions: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports rows affected

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing dangling cleanup: %w", err)
	}
	return n, nil
}

// GetSession returns a stored session with its current subscriptions.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess           Session
		connectedAt    string
		disconnectedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, seq, remote, connected_at, disconnected_at FROM peer_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Seq, &sess.Remote, &connectedAt, &disconnectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying peer session: %w", err)
	}

	sess.ConnectedAt, _ = time.Parse(time.RFC3339Nano, connectedAt) //nolint:errcheck // Format is controlled
	if disconnectedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, disconnectedAt.String) //nolint:errcheck // Format is controlled
		sess.DisconnectedAt = &t
	}

	sess.Topics, err = s.Subscriptions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Subscriptions returns the topics of a session in arrival order.
func (s *SQLiteStore) Subscriptions(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT topic FROM peer_subscriptions WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	topics := []string{}
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("scanning subscription row: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return topics, nil
}

// ActiveSubscribers returns the IDs of connected sessions subscribed to topic.
func (s *SQLiteStore) ActiveSubscribers(ctx context.Context, topic string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id FROM peer_sessions s
		 WHERE s.disconnected_at IS NULL
		   AND EXISTS (SELECT 1 FROM peer_subscriptions sub WHERE sub.session_id = s.id AND sub.topic = ?)
		 ORDER BY s.connected_at, s.seq`, topic,
	)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning subscriber row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscribers: %w", err)
	}
	return ids, nil
}
