package storage

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Upload is a transient audio file handed to the pipeline. Files live
// only until the transcription task that reads them finishes; nothing is
// persisted beyond that.
type Upload struct {
	ID        string
	Path      string
	Name      string
	Size      int64
	CreatedAt time.Time
}

// Store keeps uploaded audio files under a directory and tracks them in
// memory so the API layer can remove them once the pipeline is done with
// them.
type Store struct {
	mu      sync.Mutex
	baseDir string
	uploads map[string]*Upload
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{
		baseDir: baseDir,
		uploads: make(map[string]*Upload),
	}
}

// SaveAudio saves an uploaded multipart file and returns its record.
func (s *Store) SaveAudio(file *multipart.FileHeader) (*Upload, error) {
	id := fmt.Sprintf("audio_%d", time.Now().UnixNano())
	dst := filepath.Join(s.baseDir, id+"_"+filepath.Base(file.Filename))

	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := saveMultipartFile(file, dst); err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	var size int64
	if info, err := os.Stat(dst); err == nil {
		size = info.Size()
	}

	up := &Upload{
		ID:        id,
		Path:      dst,
		Name:      file.Filename,
		Size:      size,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.uploads[id] = up
	s.mu.Unlock()

	return up, nil
}

// Get retrieves an upload record by ID.
func (s *Store) Get(id string) (*Upload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[id]
	if !ok {
		return nil, false
	}
	// Return a copy to avoid race conditions
	cp := *up
	return &cp, true
}

// Remove deletes an upload's file and forgets its record. Callers run
// this once the transcription pipeline has completed or failed.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	up, ok := s.uploads[id]
	delete(s.uploads, id)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := os.Remove(up.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove audio file: %w", err)
	}
	return nil
}

/* helper */
func saveMultipartFile(file *multipart.FileHeader, dst string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = out.ReadFrom(src)
	return err
}
