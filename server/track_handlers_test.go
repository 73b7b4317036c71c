package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"trackvault/model"
	"trackvault/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// uploadBody builds a multipart body with metadata fields and one file part.
func uploadBody(t *testing.T, fields map[string]string, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, filename))
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, token string, fields map[string]string, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, formContentType := uploadBody(t, fields, filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, "/tracks", body)
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// storedObjects returns the names of all objects, staged included.
func (e *testEnv) storedObjects(t *testing.T) []string {
	t.Helper()
	objects, err := e.store.List(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(objects))
	for _, o := range objects {
		names = append(names, o.Name)
	}
	return names
}

var trackMeta = map[string]string{"title": "Song A", "artist": "Artist"}

func TestUploadTrack_Success(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	env.trackRepo.On("CreateTrack", mock.Anything, mock.MatchedBy(func(tr *model.Track) bool {
		return tr.UserID == 3 && tr.Title == "Song A" && tr.Artist == "Artist" &&
			strings.HasSuffix(tr.FilePath, ".mp3") && !tr.Explicit
	})).Run(func(args mock.Arguments) {
		tr := args.Get(1).(*model.Track)
		tr.ID = 11
		tr.CreatedAt = time.Now()
	}).Return(int64(11), nil)

	rr := env.upload(t, token, trackMeta, "song.mp3", "audio/mpeg", []byte("audio-bytes"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		Track map[string]interface{} `json:"track"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Song A", resp.Track["title"])
	assert.Contains(t, resp.Track["url"], "/uploads/")

	// exactly one live object, nothing staged
	objects, err := env.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.False(t, objects[0].Staged)
}

func TestUploadTrack_OptionalMetadata(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	env.trackRepo.On("CreateTrack", mock.Anything, mock.MatchedBy(func(tr *model.Track) bool {
		return tr.Genre.Valid && tr.Genre.String == "electronic" &&
			tr.Year.Valid && tr.Year.Int32 == 2021 &&
			tr.Album.Valid && tr.Album.String == "LP" &&
			tr.Explicit
	})).Return(int64(12), nil)

	fields := map[string]string{
		"title": "Song B", "artist": "Artist",
		"genre": "electronic", "year": "2021", "album": "LP", "explicit": "true",
	}
	rr := env.upload(t, token, fields, "song.flac", "audio/flac", []byte("x"))
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestUploadTrack_MissingTitle(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	rr := env.upload(t, token, map[string]string{"artist": "Artist"}, "song.mp3", "audio/mpeg", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, env.storedObjects(t))
}

func TestUploadTrack_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	rr := env.upload(t, token, trackMeta, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadTrack_NonAudioRejectedLeavesNoFile(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	rr := env.upload(t, token, trackMeta, "notes.txt", "text/plain", []byte("not audio"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, env.storedObjects(t))
	env.trackRepo.AssertNotCalled(t, "CreateTrack", mock.Anything, mock.Anything)
}

func TestUploadTrack_MalformedYear(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	fields := map[string]string{"title": "S", "artist": "A", "year": "not-a-year"}
	rr := env.upload(t, token, fields, "song.mp3", "audio/mpeg", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, env.storedObjects(t))
}

func TestUploadTrack_ExactlyMaxSizeSucceeds(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	env.trackRepo.On("CreateTrack", mock.Anything, mock.Anything).Return(int64(13), nil)

	content := bytes.Repeat([]byte{0xFF}, int(env.cfg.MaxUploadBytes))
	rr := env.upload(t, token, trackMeta, "song.mp3", "audio/mpeg", content)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestUploadTrack_OneByteOverMaxFails(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	content := bytes.Repeat([]byte{0xFF}, int(env.cfg.MaxUploadBytes)+1)
	rr := env.upload(t, token, trackMeta, "song.mp3", "audio/mpeg", content)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Empty(t, env.storedObjects(t))
}

func TestUploadTrack_InsertFailureLeavesNoFile(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	env.trackRepo.On("CreateTrack", mock.Anything, mock.Anything).
		Return(int64(0), fmt.Errorf("database unavailable"))

	rr := env.upload(t, token, trackMeta, "song.mp3", "audio/mpeg", []byte("x"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, env.storedObjects(t))
}

func TestStoredFileName_Unique(t *testing.T) {
	a := storedFileName("song.mp3")
	b := storedFileName("song.mp3")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, ".mp3"))
}

func TestListTracks(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	now := time.Now()
	tracks := []*model.Track{
		{ID: 2, UserID: 3, Title: "Newer", Artist: "A", FilePath: "b.mp3", CreatedAt: now},
		{ID: 1, UserID: 3, Title: "Older", Artist: "A", FilePath: "a.mp3", CreatedAt: now.Add(-time.Hour)},
	}
	env.trackRepo.On("ListTracksByUser", mock.Anything, int64(3), repository.ListPage{}).
		Return(tracks, nil)

	req := httptest.NewRequest(http.MethodGet, "/tracks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "Newer", resp[0]["title"])
	assert.Equal(t, "Older", resp[1]["title"])
	assert.Equal(t, "/uploads/b.mp3", resp[0]["url"])
}

func TestListTracks_LimitSetsNextCursor(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	now := time.Now()
	tracks := []*model.Track{
		{ID: 2, UserID: 3, Title: "Newer", Artist: "A", FilePath: "b.mp3", CreatedAt: now},
	}
	env.trackRepo.On("ListTracksByUser", mock.Anything, int64(3),
		repository.ListPage{Limit: 1}).Return(tracks, nil)

	req := httptest.NewRequest(http.MethodGet, "/tracks?limit=1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	cursor := rr.Header().Get("X-Next-Cursor")
	require.NotEmpty(t, cursor)

	before, beforeID, err := decodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, int64(2), beforeID)
	assert.Equal(t, now.UnixNano(), before.UnixNano())
}

func TestListTracks_InvalidCursor(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	req := httptest.NewRequest(http.MethodGet, "/tracks?cursor=%21%21not-base64", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteTrack_NotOwnedIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 99, "mallory@example.com", "Mallory")

	env.trackRepo.On("GetTrackOwned", mock.Anything, int64(11), int64(99)).Return(nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/tracks/11", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	env.trackRepo.AssertNotCalled(t, "DeleteTrackOwned", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteTrack_OwnerRemovesRowAndFile(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")
	ctx := context.Background()

	require.NoError(t, env.store.SaveStaged(ctx, "song.mp3", strings.NewReader("x"), 1, "audio/mpeg"))
	require.NoError(t, env.store.Promote(ctx, "song.mp3"))

	env.trackRepo.On("GetTrackOwned", mock.Anything, int64(11), int64(3)).
		Return(&model.Track{ID: 11, UserID: 3, FilePath: "song.mp3"}, nil)
	env.trackRepo.On("DeleteTrackOwned", mock.Anything, int64(11), int64(3)).Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/tracks/11", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, env.storedObjects(t))
}

func TestDeleteTrack_FileRemovalFailureStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, 3, "alice@example.com", "Alice")

	// file never existed; Remove on a missing object is a no-op
	env.trackRepo.On("GetTrackOwned", mock.Anything, int64(11), int64(3)).
		Return(&model.Track{ID: 11, UserID: 3, FilePath: "gone.mp3"}, nil)
	env.trackRepo.On("DeleteTrackOwned", mock.Anything, int64(11), int64(3)).Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/tracks/11", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServeStoredFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.SaveStaged(ctx, "song.mp3", strings.NewReader("audio-bytes"), 11, "audio/mpeg"))
	require.NoError(t, env.store.Promote(ctx, "song.mp3"))

	req := httptest.NewRequest(http.MethodGet, "/uploads/song.mp3", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Equal(t, "audio-bytes", string(body))
	assert.Equal(t, "audio/mpeg", rr.Header().Get("Content-Type"))
}

func TestServeStoredFile_RejectsDotNames(t *testing.T) {
	env := newTestEnv(t)

	// the staging directory lives under the upload root; its name must
	// never be servable
	for _, name := range []string{".staging", ".env"} {
		req := httptest.NewRequest(http.MethodGet, "/uploads/"+name, nil)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNotFound, rr.Code, name)
	}
}

func TestServeStoredFile_Missing(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/uploads/ghost.mp3", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
