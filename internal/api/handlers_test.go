package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechscan/internal/config"
	"speechscan/internal/storage"
	"speechscan/internal/task"
	"speechscan/internal/transcribe"
)

type fakeProvider struct {
	transcript string
	err        error
	block      chan struct{}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CheckCredential(ctx context.Context) bool { return true }

func (f *fakeProvider) Transcribe(ctx context.Context, audio io.Reader) (*transcribe.Result, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, fmt.Errorf("canceled: %w", transcribe.ErrTranscriptionFailed)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.Result{Transcript: f.transcript, Provider: f.Name()}, nil
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
}

func setup(t *testing.T, p *fakeProvider) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	uploadDir := t.TempDir()
	Init(
		task.NewRunner(func(apiKey string) (transcribe.Provider, error) { return p, nil }),
		storage.NewStore(uploadDir),
		&config.Config{Port: "0", Provider: "assemblyai", UploadDir: uploadDir},
	)

	r := gin.New()
	RegisterRoutes(r)
	return r, uploadDir
}

func postAudio(t *testing.T, r *gin.Engine, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("audio", "speech.mp3")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake mp3 bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func getTask(t *testing.T, r *gin.Engine, id string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/transcriptions/"+id, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code, decode(t, rec)
}

func waitForStatus(t *testing.T, r *gin.Engine, id, want string) envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, env := getTask(t, r, id)
		if env.Data["status"] == want {
			return env
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %q", id, want)
	return envelope{}
}

func TestStartTranscriptionHappyPath(t *testing.T) {
	r, uploadDir := setup(t, &fakeProvider{transcript: "hello world hello"})

	rec := postAudio(t, r, "test-key")
	require.Equal(t, http.StatusAccepted, rec.Code)
	env := decode(t, rec)
	require.True(t, env.Success)
	id, _ := env.Data["id"].(string)
	require.NotEmpty(t, id)

	env = waitForStatus(t, r, id, "completed")
	wordsJSON, err := json.Marshal(env.Data["words"])
	require.NoError(t, err)
	assert.JSONEq(t, `[{"word":"hello","count":2},{"word":"world","count":1}]`, string(wordsJSON))

	// The temp upload is gone once the pipeline has finished with it.
	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(uploadDir)
		return err == nil && len(entries) == 0
	}, 2*time.Second, 10*time.Millisecond, "uploaded audio was not cleaned up")
}

func TestStartTranscriptionRequiresAudio(t *testing.T) {
	r, _ := setup(t, &fakeProvider{})

	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", strings.NewReader(""))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartTranscriptionRequiresKey(t *testing.T) {
	r, _ := setup(t, &fakeProvider{})

	rec := postAudio(t, r, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartTranscriptionRejectsConcurrent(t *testing.T) {
	block := make(chan struct{})
	r, uploadDir := setup(t, &fakeProvider{transcript: "ok", block: block})

	first := postAudio(t, r, "test-key")
	require.Equal(t, http.StatusAccepted, first.Code)

	second := postAudio(t, r, "test-key")
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, "transcription already in progress", decode(t, second).Error)

	// The rejected upload must not leak a file: only the running task's
	// audio remains.
	entries, err := os.ReadDir(uploadDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	close(block)
	id := decode(t, first).Data["id"].(string)
	waitForStatus(t, r, id, "completed")
}

func TestGetTranscriptionFailure(t *testing.T) {
	r, _ := setup(t, &fakeProvider{
		err: fmt.Errorf("credential rejected: %w", transcribe.ErrInvalidCredential),
	})

	rec := postAudio(t, r, "bad-key")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode(t, rec).Data["id"].(string)

	env := waitForStatus(t, r, id, "failed")
	assert.Equal(t, "invalid api key", env.Data["error"])
	assert.NotContains(t, env.Data, "words")
}

func TestGetTranscriptionBadID(t *testing.T) {
	r, _ := setup(t, &fakeProvider{})

	code, _ := getTask(t, r, "not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = getTask(t, r, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCancelTranscription(t *testing.T) {
	r, _ := setup(t, &fakeProvider{transcript: "ok", block: make(chan struct{})})

	rec := postAudio(t, r, "test-key")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode(t, rec).Data["id"].(string)

	req := httptest.NewRequest(http.MethodDelete, "/api/transcriptions/"+id, nil)
	del := httptest.NewRecorder()
	r.ServeHTTP(del, req)
	require.Equal(t, http.StatusOK, del.Code)

	env := waitForStatus(t, r, id, "failed")
	assert.Equal(t, "file transcription error", env.Data["error"])
}

func TestCancelFinishedTranscription(t *testing.T) {
	r, _ := setup(t, &fakeProvider{transcript: "hello"})

	rec := postAudio(t, r, "test-key")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode(t, rec).Data["id"].(string)
	waitForStatus(t, r, id, "completed")

	req := httptest.NewRequest(http.MethodDelete, "/api/transcriptions/"+id, nil)
	del := httptest.NewRecorder()
	r.ServeHTTP(del, req)

	// Nothing was canceled; the response reports the terminal state.
	require.Equal(t, http.StatusOK, del.Code)
	env := decode(t, del)
	assert.Equal(t, false, env.Data["canceled"])
	assert.Equal(t, "completed", env.Data["status"])

	_, got := getTask(t, r, id)
	assert.Equal(t, "completed", got.Data["status"])
}

func TestCheckKey(t *testing.T) {
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer probe.Close()
	t.Setenv("SPEECHSCAN_PROVIDER", "assemblyai")
	t.Setenv("ASSEMBLYAI_BASE_URL", probe.URL)

	r, _ := setup(t, &fakeProvider{})

	body := strings.NewReader(`{"api_key":"bad-key"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/key/check", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, false, env.Data["valid"])

	// Missing body
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/key/check", strings.NewReader("{}")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
