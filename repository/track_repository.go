package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trackvault/model"
)

// ListPage bounds a cursor-paginated track listing. A zero Before/BeforeID
// means "from the top"; a zero Limit means "no limit".
type ListPage struct {
	Before   time.Time
	BeforeID int64
	Limit    int
}

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) (int64, error)
	GetTrackOwned(ctx context.Context, id, userID int64) (*model.Track, error)
	ListTracksByUser(ctx context.Context, userID int64, page ListPage) ([]*model.Track, error)
	DeleteTrackOwned(ctx context.Context, id, userID int64) error
	ListFilePaths(ctx context.Context) ([]string, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	db *sql.DB
}

// NewMySQLTrackRepository creates a new mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{db: db}
}

const trackColumns = "id, user_id, title, artist, genre, year, album, file_path, explicit, created_at, updated_at"

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.Artist, &track.Genre,
		&track.Year, &track.Album, &track.FilePath, &track.Explicit, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return track, nil
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (user_id, title, artist, genre, year, album, file_path, explicit, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	res, err := r.db.ExecContext(ctx, query, track.UserID, track.Title, track.Artist,
		track.Genre, track.Year, track.Album, track.FilePath, track.Explicit, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	track.ID = id
	track.CreatedAt = now
	track.UpdatedAt = now
	return id, nil
}

// GetTrackOwned retrieves a track by ID scoped to the owning user.
// Returns (nil, nil) when no such track is owned by the user.
func (r *mysqlTrackRepository) GetTrackOwned(ctx context.Context, id, userID int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ? AND user_id = ?`
	track, err := scanTrack(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found for this user
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// ListTracksByUser retrieves the user's tracks, newest first. The (created_at, id)
// cursor keeps the ordering stable under concurrent inserts.
func (r *mysqlTrackRepository) ListTracksByUser(ctx context.Context, userID int64, page ListPage) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ?`
	args := []interface{}{userID}

	if !page.Before.IsZero() {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, page.Before, page.Before, page.BeforeID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if page.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, page.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in ListTracksByUser: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListTracksByUser: %w", err)
	}

	return tracks, nil
}

// DeleteTrackOwned deletes a track scoped to the owning user. Returns
// ErrTrackNotFound when the user owns no track with that ID.
func (r *mysqlTrackRepository) DeleteTrackOwned(ctx context.Context, id, userID int64) error {
	query := `DELETE FROM tracks WHERE id = ? AND user_id = ?`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to execute DeleteTrackOwned for track ID %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows for DeleteTrackOwned: %w", err)
	}
	if affected == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// ListFilePaths returns the file paths of every track row. The orphan sweep
// uses this to tell stored files from leftovers.
func (r *mysqlTrackRepository) ListFilePaths(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT file_path FROM tracks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query track file paths: %w", err)
	}
	defer rows.Close()

	paths := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan file path: %w", err)
		}
		paths = append(paths, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListFilePaths: %w", err)
	}
	return paths, nil
}
