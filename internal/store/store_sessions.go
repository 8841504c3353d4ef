package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateSession persists a new session together with its rink. The rink row is
// upserted so multiple sessions can share a venue. A missing session ID is
// generated; status defaults to active.
func (s *Store) CreateSession(ctx context.Context, session *Session) (*Session, error) {
	if session == nil {
		return nil, errors.New("session is nil")
	}
	if strings.TrimSpace(session.Rink.ProviderRinkID) == "" {
		return nil, errors.New("session rink requires a provider feed id")
	}
	if strings.TrimSpace(session.HomeTeam) == "" || strings.TrimSpace(session.AwayTeam) == "" {
		return nil, errors.New("session requires both team names")
	}
	if session.GameDate.IsZero() {
		return nil, errors.New("session requires a game date")
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Rink.ID == "" {
		session.Rink.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = SessionActive
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	timestamp := formatTime(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rinks (id, name, address, provider_rink_id, timezone, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             name = excluded.name, address = excluded.address,
             provider_rink_id = excluded.provider_rink_id,
             timezone = excluded.timezone, updated_at = excluded.updated_at`,
		session.Rink.ID,
		session.Rink.Name,
		nullableString(session.Rink.Address),
		session.Rink.ProviderRinkID,
		nullableString(session.Rink.Timezone),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert rink: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, rink_id, game_date, home_team, away_team, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.Rink.ID,
		formatTime(session.GameDate),
		session.HomeTeam,
		session.AwayTeam,
		session.Status,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return s.GetSession(ctx, session.ID)
}

const sessionColumns = `s.id, s.game_date, s.home_team, s.away_team, s.status, s.created_at, s.updated_at,
    r.id, r.name, r.address, r.provider_rink_id, r.timezone`

// GetSession fetches a session with its rink and full comment list. Comments
// are returned in insertion order. Returns nil when the session is unknown.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s JOIN rinks r ON r.id = s.rink_id WHERE s.id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	comments, err := s.commentsForSession(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Comments = comments
	return session, nil
}

// ListSessions returns all sessions newest first, without comment bodies.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s JOIN rinks r ON r.id = s.rink_id ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpdateSessionStatus transitions a session's lifecycle state.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status SessionStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// AddComment appends a comment to a session. Timestamps must be non-negative
// and the body must not be empty.
func (s *Store) AddComment(ctx context.Context, comment *Comment) (*Comment, error) {
	if comment == nil {
		return nil, errors.New("comment is nil")
	}
	if comment.TimestampMS < 0 {
		return nil, errors.New("comment timestamp must be >= 0")
	}
	if strings.TrimSpace(comment.Text) == "" {
		return nil, errors.New("comment body must not be empty")
	}
	if comment.SessionID == "" {
		return nil, errors.New("comment requires a session id")
	}

	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	comment.CreatedAt = now
	comment.UpdatedAt = now
	timestamp := formatTime(now)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (id, session_id, timestamp_ms, body, author, game_clock, pos_x, pos_y, color, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		comment.ID,
		comment.SessionID,
		comment.TimestampMS,
		comment.Text,
		nullableString(comment.Author),
		nullableString(comment.GameClock),
		nullableFloat(comment.PosX),
		nullableFloat(comment.PosY),
		nullableString(comment.Color),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return comment, nil
}

func (s *Store) commentsForSession(ctx context.Context, sessionID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, timestamp_ms, body, author, game_clock, pos_x, pos_y, color, created_at, updated_at
         FROM comments WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var (
			c          Comment
			author     sql.NullString
			gameClock  sql.NullString
			posX, posY sql.NullFloat64
			color      sql.NullString
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&c.ID, &c.SessionID, &c.TimestampMS, &c.Text, &author, &gameClock, &posX, &posY, &color, &createdRaw, &updatedRaw); err != nil {
			return nil, err
		}
		c.Author = author.String
		c.GameClock = gameClock.String
		c.Color = color.String
		if posX.Valid {
			v := posX.Float64
			c.PosX = &v
		}
		if posY.Valid {
			v := posY.Float64
			c.PosY = &v
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			c.CreatedAt = created
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			c.UpdatedAt = updated
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		session    Session
		gameDate   string
		createdRaw string
		updatedRaw string
		address    sql.NullString
		timezone   sql.NullString
	)
	if err := scanner.Scan(
		&session.ID,
		&gameDate,
		&session.HomeTeam,
		&session.AwayTeam,
		&session.Status,
		&createdRaw,
		&updatedRaw,
		&session.Rink.ID,
		&session.Rink.Name,
		&address,
		&session.Rink.ProviderRinkID,
		&timezone,
	); err != nil {
		return nil, err
	}
	session.Rink.Address = address.String
	session.Rink.Timezone = timezone.String
	if parsed, err := parseTimeString(gameDate); err == nil {
		session.GameDate = parsed
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		session.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		session.UpdatedAt = updated
	}
	return &session, nil
}
