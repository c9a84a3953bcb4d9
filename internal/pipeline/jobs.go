package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/reflinker/internal/linker"
)

// JobStatus represents the state of a link job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusFetching  JobStatus = "fetching"
	StatusLinking   JobStatus = "linking"
	StatusCompleted JobStatus = "completed"
	StatusEmpty     JobStatus = "empty"
	StatusFailed    JobStatus = "failed"
)

// Job tracks the state of a single page being linked. A job either fetches
// URL or parses uploaded file data.
type Job struct {
	mu sync.Mutex

	ID       string         `json:"job_id"`
	URL      string         `json:"url,omitempty"`
	Filename string         `json:"filename,omitempty"`
	Title    string         `json:"title"`
	Options  linker.Options `json:"options"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	result   *linker.Result
	html     string
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	FetchAttempts int      `json:"fetch_attempts"`
	Matches       int      `json:"matches"`
	Annotated     int      `json:"annotated"`
	Skipped       int      `json:"skipped"`
	Errors        []string `json:"errors"`
}

// NewJob returns a queued job with a fresh ID.
func NewJob(url, filename, title string, opts linker.Options) *Job {
	now := time.Now()
	return &Job{
		ID:        generateULID(),
		URL:       url,
		Filename:  filename,
		Title:     title,
		Options:   opts,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// IncrFetchAttempts atomically increments the fetch attempt counter.
func (j *Job) IncrFetchAttempts() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.FetchAttempts++
	j.UpdatedAt = time.Now()
}

// SetResult records the linker's result and the annotated document.
func (j *Job) SetResult(res *linker.Result, html string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.html = html
	if res != nil {
		if j.Title == "" {
			j.Title = res.Title
		}
		j.Progress.Matches = res.Matches
		j.Progress.Annotated = res.Annotated
		j.Progress.Skipped = len(res.Skipped)
	}
	j.UpdatedAt = time.Now()
}

// SetContentHash records the hash of the page as loaded.
func (j *Job) SetContentHash(h string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = h
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// JobSnapshot is a read-only, JSON-safe copy of job state. Result and HTML
// are only set once the job has finished linking.
type JobSnapshot struct {
	ID          string         `json:"job_id"`
	URL         string         `json:"url,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	Status      JobStatus      `json:"status"`
	Phase       string         `json:"phase"`
	Title       string         `json:"title"`
	Progress    Progress       `json:"progress"`
	ContentHash string         `json:"content_hash,omitempty"`
	Result      *linker.Result `json:"result,omitempty"`
	HTML        string         `json:"html,omitempty"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:       j.ID,
		URL:      j.URL,
		Filename: j.Filename,
		Status:   j.Status,
		Phase:    j.Phase,
		Title:    j.Title,
		Progress: Progress{
			FetchAttempts: j.Progress.FetchAttempts,
			Matches:       j.Progress.Matches,
			Annotated:     j.Progress.Annotated,
			Skipped:       j.Progress.Skipped,
			Errors:        errs,
		},
		ContentHash: j.ContentHash,
		Result:      j.result,
		HTML:        j.html,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
