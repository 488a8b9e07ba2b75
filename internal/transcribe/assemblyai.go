package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	assemblyAIBaseURL = "https://api.assemblyai.com"

	// uploadChunkSize is the fixed block size for streaming audio to the
	// ingestion endpoint (5 MiB).
	uploadChunkSize = 5 * 1024 * 1024

	defaultPollDeadline  = 5 * time.Minute
	defaultPollInterval  = 1 * time.Second
	maxPollInterval      = 10 * time.Second
	defaultClientTimeout = 90 * time.Second
)

// JobState is the provider-reported state of a transcription job.
type JobState string

const (
	StateQueued     JobState = "queued"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "error"
)

// JobStatus is one poll observation of a transcription job.
type JobStatus struct {
	State      JobState
	Text       string  // transcript text, set when State is StateCompleted
	Confidence float64 // overall confidence, set when State is StateCompleted
	Message    string  // provider error message, set when State is StateFailed
	Raw        string  // the poll response body as received
}

// AssemblyAIProvider implements Provider against the AssemblyAI v2 API:
// upload the audio, create a transcript job, poll until a terminal state.
type AssemblyAIProvider struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollDeadline time.Duration
	pollInterval time.Duration
}

// AssemblyAIOption configures the AssemblyAI provider.
type AssemblyAIOption func(*AssemblyAIProvider)

// WithBaseURL sets a custom API base URL (for testing or proxies).
func WithBaseURL(url string) AssemblyAIOption {
	return func(p *AssemblyAIProvider) {
		p.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) AssemblyAIOption {
	return func(p *AssemblyAIProvider) {
		p.httpClient = client
	}
}

// WithPollDeadline sets the overall wall-clock budget for one Transcribe call.
func WithPollDeadline(d time.Duration) AssemblyAIOption {
	return func(p *AssemblyAIProvider) {
		p.pollDeadline = d
	}
}

// WithPollInterval sets the initial delay between status polls. The delay
// doubles after every poll up to a 10s cap.
func WithPollInterval(d time.Duration) AssemblyAIOption {
	return func(p *AssemblyAIProvider) {
		p.pollInterval = d
	}
}

// NewAssemblyAI creates an AssemblyAI transcription provider for the given
// API key. The key is held for the lifetime of the provider only; nothing
// is persisted.
func NewAssemblyAI(apiKey string, opts ...AssemblyAIOption) *AssemblyAIProvider {
	p := &AssemblyAIProvider{
		apiKey:       apiKey,
		baseURL:      assemblyAIBaseURL,
		httpClient:   &http.Client{Timeout: defaultClientTimeout},
		pollDeadline: defaultPollDeadline,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name
func (p *AssemblyAIProvider) Name() string {
	return "assemblyai"
}

// CheckCredential sends a lightweight authenticated request and returns
// false only on an explicit 401. Any other outcome, including transport
// errors and server errors, counts as valid: an ambiguous probe must not
// be mistaken for a bad key, a later step will fail on its own terms.
func (p *AssemblyAIProvider) CheckCredential(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v2/transcript", nil)
	if err != nil {
		return true
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Printf("[AssemblyAI] Credential probe failed to reach provider: %v", err)
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[AssemblyAI] Credential probe returned status %d, treating key as valid", resp.StatusCode)
	}
	return true
}

// Upload streams the audio to the ingestion endpoint in fixed 5 MiB
// chunks and returns the temporary URL the provider assigned to it.
func (p *AssemblyAIProvider) Upload(ctx context.Context, audio io.Reader) (string, error) {
	pr, pw := io.Pipe()
	go func() {
		buf := make([]byte, uploadChunkSize)
		for {
			n, err := io.ReadFull(audio, buf)
			if n > 0 {
				if _, werr := pw.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				pw.Close()
				return
			}
			if err != nil {
				pw.CloseWithError(err)
				return
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/upload", pr)
	if err != nil {
		// Unblock the chunk pump, which is parked on pw.Write.
		pr.CloseWithError(err)
		return "", fmt.Errorf("failed to create upload request: %v: %w", err, ErrTranscriptionFailed)
	}
	req.Header.Set("authorization", p.apiKey)
	req.Header.Set("content-type", "application/octet-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio: %v: %w", err, ErrTranscriptionFailed)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %v: %w", err, ErrTranscriptionFailed)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("[AssemblyAI] Upload failed: status %d, body: %s", resp.StatusCode, string(body))
		return "", fmt.Errorf("upload returned status %d: %w", resp.StatusCode, ErrTranscriptionFailed)
	}

	var uploadResp struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(body, &uploadResp); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %v: %w", err, ErrTranscriptionFailed)
	}
	if uploadResp.UploadURL == "" {
		return "", fmt.Errorf("upload response carried no URL: %w", ErrTranscriptionFailed)
	}
	return uploadResp.UploadURL, nil
}

// Submit creates a transcription job for previously uploaded audio,
// requesting content-safety and language-detection, and returns the job ID.
func (p *AssemblyAIProvider) Submit(ctx context.Context, uploadURL string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"audio_url":          uploadURL,
		"content_safety":     true,
		"language_detection": true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript request: %v: %w", err, ErrTranscriptionFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create transcript request: %v: %w", err, ErrTranscriptionFailed)
	}
	req.Header.Set("authorization", p.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit transcript request: %v: %w", err, ErrTranscriptionFailed)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript response: %v: %w", err, ErrTranscriptionFailed)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("[AssemblyAI] Transcript submission failed: status %d, body: %s", resp.StatusCode, string(body))
		return "", fmt.Errorf("transcript submission returned status %d: %w", resp.StatusCode, ErrTranscriptionFailed)
	}

	var submitResp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &submitResp); err != nil {
		return "", fmt.Errorf("failed to parse transcript response: %v: %w", err, ErrTranscriptionFailed)
	}
	if submitResp.ID == "" {
		return "", fmt.Errorf("transcript submission carried no job ID: %w", ErrTranscriptionFailed)
	}
	return submitResp.ID, nil
}

// Poll fetches the current status of a transcription job.
func (p *AssemblyAIProvider) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v2/transcript/"+jobID, nil)
	if err != nil {
		return JobStatus{}, fmt.Errorf("failed to create poll request: %v: %w", err, ErrTranscriptionFailed)
	}
	req.Header.Set("authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return JobStatus{}, fmt.Errorf("failed to poll transcript: %v: %w", err, ErrTranscriptionFailed)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return JobStatus{}, fmt.Errorf("failed to read poll response: %v: %w", err, ErrTranscriptionFailed)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("[AssemblyAI] Poll failed: status %d, body: %s", resp.StatusCode, string(body))
		return JobStatus{}, fmt.Errorf("poll returned status %d: %w", resp.StatusCode, ErrTranscriptionFailed)
	}

	var pollResp struct {
		Status     string  `json:"status"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		Error      string  `json:"error"`
	}
	if err := json.Unmarshal(body, &pollResp); err != nil {
		return JobStatus{}, fmt.Errorf("failed to parse poll response: %v: %w", err, ErrTranscriptionFailed)
	}

	switch JobState(pollResp.Status) {
	case StateQueued:
		return JobStatus{State: StateQueued, Raw: string(body)}, nil
	case StateProcessing:
		return JobStatus{State: StateProcessing, Raw: string(body)}, nil
	case StateCompleted:
		return JobStatus{State: StateCompleted, Text: pollResp.Text, Confidence: pollResp.Confidence, Raw: string(body)}, nil
	case StateFailed:
		return JobStatus{State: StateFailed, Message: pollResp.Error, Raw: string(body)}, nil
	default:
		return JobStatus{}, fmt.Errorf("unexpected job status %q: %w", pollResp.Status, ErrTranscriptionFailed)
	}
}

// Transcribe drives the full protocol: credential gate, chunked upload,
// job submission, then a poll loop with exponential backoff under an
// overall deadline. Once a terminal state is observed polling stops and
// the job ID is never reused.
func (p *AssemblyAIProvider) Transcribe(ctx context.Context, audio io.Reader) (*Result, error) {
	if !p.CheckCredential(ctx) {
		return nil, fmt.Errorf("credential rejected by provider: %w", ErrInvalidCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, p.pollDeadline)
	defer cancel()

	uploadURL, err := p.Upload(ctx, audio)
	if err != nil {
		return nil, err
	}
	log.Printf("[AssemblyAI] Audio uploaded, submitting transcription job")

	jobID, err := p.Submit(ctx, uploadURL)
	if err != nil {
		return nil, err
	}
	log.Printf("[AssemblyAI] Job %s submitted, polling for completion", jobID)

	delay := p.pollInterval
	for {
		status, err := p.Poll(ctx, jobID)
		if err != nil {
			// The deadline can also expire mid-request.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("job %s not terminal after %s: %w", jobID, p.pollDeadline, ErrTimeout)
			}
			return nil, err
		}

		switch status.State {
		case StateCompleted:
			return &Result{
				Transcript:  status.Text,
				Confidence:  status.Confidence,
				Provider:    p.Name(),
				RawResponse: status.Raw,
			}, nil
		case StateFailed:
			log.Printf("[AssemblyAI] Job %s failed: %s", jobID, status.Message)
			return nil, fmt.Errorf("provider reported processing error: %s: %w", status.Message, ErrTranscriptionFailed)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("job %s not terminal after %s: %w", jobID, p.pollDeadline, ErrTimeout)
			}
			return nil, fmt.Errorf("canceled while polling job %s: %w", jobID, ErrTranscriptionFailed)
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxPollInterval {
			delay = maxPollInterval
		}
	}
}
