package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trackvault/logger"
	"trackvault/model"

	"github.com/redis/go-redis/v9"
)

// trackListTTL bounds staleness if an invalidation is ever missed.
const trackListTTL = 5 * time.Minute

// TrackCache caches the default (unpaginated) per-user track listing.
// All operations are best-effort: a Redis failure degrades to a DB read.
type TrackCache struct {
	client *redis.Client
}

// NewTrackCache creates a TrackCache. A nil client disables caching.
func NewTrackCache(client *redis.Client) *TrackCache {
	return &TrackCache{client: client}
}

func trackListKey(userID int64) string {
	return fmt.Sprintf("tracks:%d", userID)
}

// cachedTrack is the cache wire form of a track. model.Track's json tags
// shape API responses and hide persisted fields like file_path, so the
// cache encodes its own representation carrying every column.
type cachedTrack struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Genre     *string   `json:"genre,omitempty"`
	Year      *int32    `json:"year,omitempty"`
	Album     *string   `json:"album,omitempty"`
	FilePath  string    `json:"filePath"`
	Explicit  bool      `json:"explicit"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func encodeTrackList(tracks []*model.Track) ([]byte, error) {
	cached := make([]cachedTrack, 0, len(tracks))
	for _, t := range tracks {
		c := cachedTrack{
			ID:        t.ID,
			UserID:    t.UserID,
			Title:     t.Title,
			Artist:    t.Artist,
			FilePath:  t.FilePath,
			Explicit:  t.Explicit,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		}
		if t.Genre.Valid {
			genre := t.Genre.String
			c.Genre = &genre
		}
		if t.Year.Valid {
			year := t.Year.Int32
			c.Year = &year
		}
		if t.Album.Valid {
			album := t.Album.String
			c.Album = &album
		}
		cached = append(cached, c)
	}
	return json.Marshal(cached)
}

func decodeTrackList(data []byte) ([]*model.Track, error) {
	var cached []cachedTrack
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	tracks := make([]*model.Track, 0, len(cached))
	for _, c := range cached {
		t := &model.Track{
			ID:        c.ID,
			UserID:    c.UserID,
			Title:     c.Title,
			Artist:    c.Artist,
			FilePath:  c.FilePath,
			Explicit:  c.Explicit,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		}
		if c.Genre != nil {
			t.Genre = sql.NullString{String: *c.Genre, Valid: true}
		}
		if c.Year != nil {
			t.Year = sql.NullInt32{Int32: *c.Year, Valid: true}
		}
		if c.Album != nil {
			t.Album = sql.NullString{String: *c.Album, Valid: true}
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// Get returns the cached listing for a user, or (nil, false) on a miss.
func (c *TrackCache) Get(ctx context.Context, userID int64) ([]*model.Track, bool) {
	if c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, trackListKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("failed to read track listing from cache",
				logger.Int64("userId", userID), logger.ErrorField(err))
		}
		return nil, false
	}

	tracks, err := decodeTrackList(data)
	if err != nil {
		logger.Warn("failed to decode cached track listing",
			logger.Int64("userId", userID), logger.ErrorField(err))
		return nil, false
	}
	return tracks, true
}

// Set stores the listing for a user.
func (c *TrackCache) Set(ctx context.Context, userID int64, tracks []*model.Track) {
	if c.client == nil {
		return
	}

	data, err := encodeTrackList(tracks)
	if err != nil {
		logger.Warn("failed to encode track listing for cache",
			logger.Int64("userId", userID), logger.ErrorField(err))
		return
	}

	if err := c.client.Set(ctx, trackListKey(userID), data, trackListTTL).Err(); err != nil {
		logger.Warn("failed to write track listing to cache",
			logger.Int64("userId", userID), logger.ErrorField(err))
	}
}

// Invalidate drops the cached listing for a user. Called after every
// upload and delete.
func (c *TrackCache) Invalidate(ctx context.Context, userID int64) {
	if c.client == nil {
		return
	}

	if err := c.client.Del(ctx, trackListKey(userID)).Err(); err != nil {
		logger.Warn("failed to invalidate track listing cache",
			logger.Int64("userId", userID), logger.ErrorField(err))
	}
}
