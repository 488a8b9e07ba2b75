package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"speechscan/internal/config"
	"speechscan/internal/storage"
	"speechscan/internal/task"
	"speechscan/internal/transcribe"
	"speechscan/internal/utils"
)

var (
	runner *task.Runner
	store  *storage.Store
	cfg    *config.Config
)

// Init wires the handlers to their collaborators. Must run before
// RegisterRoutes.
func Init(r *task.Runner, s *storage.Store, c *config.Config) {
	runner = r
	store = s
	cfg = c
}

func RegisterRoutes(r *gin.Engine) {
	// Health check
	r.GET("/health", healthCheck)

	api := r.Group("/api")
	{
		api.POST("/transcriptions", startTranscription)
		api.GET("/transcriptions/:id", getTranscription)
		api.DELETE("/transcriptions/:id", cancelTranscription)
		api.POST("/key/check", checkKey)
	}
}

// healthCheck returns server health status
func healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "speechscan-backend",
	})
}

// startTranscription handles POST /api/transcriptions: saves the uploaded
// audio, starts the background pipeline and returns the task ID. While a
// task is running further submissions are rejected with 409.
func startTranscription(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "audio file is required (multipart field 'audio')")
		return
	}

	apiKey := c.GetHeader("X-API-Key")
	if apiKey == "" {
		apiKey = c.PostForm("api_key")
	}
	if apiKey == "" {
		apiKey = cfg.DefaultAPIKey
	}
	if apiKey == "" {
		utils.Error(c, http.StatusBadRequest, "api key is required (X-API-Key header or 'api_key' field)")
		return
	}

	up, err := store.SaveAudio(file)
	if err != nil {
		log.Printf("[API] Failed to save upload: %v", err)
		utils.Error(c, http.StatusInternalServerError, "failed to save audio file")
		return
	}

	// The upload is transient: whatever the outcome, the file goes away
	// once the pipeline has read it.
	uploadID := up.ID
	id, err := runner.Submit(up.Path, apiKey, func(done task.Completion) {
		if rmErr := store.Remove(uploadID); rmErr != nil {
			log.Printf("[API] Cleanup of upload %s failed: %v", uploadID, rmErr)
		}
	})
	if err != nil {
		if rmErr := store.Remove(uploadID); rmErr != nil {
			log.Printf("[API] Cleanup of upload %s failed: %v", uploadID, rmErr)
		}
		if errors.Is(err, task.ErrBusy) {
			utils.Error(c, http.StatusConflict, task.ErrBusy.Error())
			return
		}
		log.Printf("[API] Failed to submit task: %v", err)
		utils.Error(c, http.StatusInternalServerError, "failed to start transcription")
		return
	}

	utils.Accepted(c, gin.H{
		"id":     id.String(),
		"status": string(task.StatusQueued),
	})
}

// getTranscription handles GET /api/transcriptions/:id
func getTranscription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid task id")
		return
	}

	t, ok := runner.Get(id)
	if !ok {
		utils.Error(c, http.StatusNotFound, "task not found")
		return
	}

	data := gin.H{
		"id":         t.ID.String(),
		"status":     string(t.Status),
		"created_at": t.CreatedAt,
	}
	if t.Provider != "" {
		data["provider"] = t.Provider
	}
	switch t.Status {
	case task.StatusCompleted:
		data["words"] = t.Words
	case task.StatusFailed:
		// Legacy tag, "invalid api key" or "file transcription error"
		data["error"] = t.ErrorTag
	}
	utils.Success(c, data)
}

// cancelTranscription handles DELETE /api/transcriptions/:id. A task
// that already reached a terminal state cannot be canceled anymore; the
// response then reports its final status instead.
func cancelTranscription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid task id")
		return
	}

	if err := runner.Cancel(id); err != nil {
		if errors.Is(err, task.ErrFinished) {
			t, _ := runner.Get(id)
			utils.Success(c, gin.H{
				"id":       id.String(),
				"canceled": false,
				"status":   string(t.Status),
			})
			return
		}
		utils.Error(c, http.StatusNotFound, "task not found")
		return
	}
	utils.Success(c, gin.H{"id": id.String(), "canceled": true})
}

// checkKey handles POST /api/key/check: runs the provider's credential
// probe against the supplied key.
func checkKey(c *gin.Context) {
	var req struct {
		APIKey string `json:"api_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "api_key is required")
		return
	}

	provider, err := transcribe.CreateProvider(req.APIKey)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	utils.Success(c, gin.H{
		"provider": provider.Name(),
		"valid":    provider.CheckCredential(c.Request.Context()),
	})
}
