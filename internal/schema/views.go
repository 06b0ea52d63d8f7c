package schema

import (
	"time"

	"janitor/internal/scheduler"
	"janitor/internal/store"
)

// ListRunsQuery filters GET /runs
type ListRunsQuery struct {
	JobID string `form:"job_id" validate:"omitempty,jobid"`
	Limit int    `form:"limit" validate:"gte=0,lte=500"`
}

// ListDocumentsQuery filters GET /documents
type ListDocumentsQuery struct {
	Limit int `form:"limit" validate:"gte=0,lte=500"`
}

// JobRef identifies a job from a path parameter
type JobRef struct {
	ID string `json:"id" validate:"required,jobid"`
}

// RunView is the API form of a job run
type RunView struct {
	ID              string     `json:"id"`
	JobID           string     `json:"job_id"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// DumpRun converts a stored run
func DumpRun(run *store.JobRun) RunView {
	view := RunView{
		ID:         run.ID,
		JobID:      run.JobID,
		Status:     run.Status,
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt,
		Error:      run.Error,
	}
	if run.FinishedAt != nil {
		finished := run.FinishedAt.UTC()
		seconds := run.Duration().Seconds()
		view.FinishedAt = &finished
		view.DurationSeconds = &seconds
	}
	return view
}

// DumpRuns converts a list of runs; the result is never nil
func DumpRuns(runs []*store.JobRun) []RunView {
	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, DumpRun(run))
	}
	return views
}

// DocumentView is the API form of an uploaded document
type DocumentView struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Set        string    `json:"set"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	Sheets     []string  `json:"sheets"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// URLFunc builds the public URL of a stored file
type URLFunc func(set, filename string) string

// DumpDocument converts a stored document
func DumpDocument(doc *store.Document, url URLFunc) DocumentView {
	sheets := doc.Sheets
	if sheets == nil {
		sheets = []string{}
	}
	return DocumentView{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Set:        doc.SetName,
		Size:       doc.Size,
		Checksum:   doc.Checksum,
		Sheets:     sheets,
		URL:        url(doc.SetName, doc.Filename),
		UploadedAt: doc.UploadedAt.UTC(),
	}
}

// DumpDocuments converts a list of documents; the result is never nil
func DumpDocuments(docs []*store.Document, url URLFunc) []DocumentView {
	views := make([]DocumentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, DumpDocument(doc, url))
	}
	return views
}

// JobView is the API form of a scheduled job
type JobView struct {
	ID              string     `json:"id"`
	Trigger         string     `json:"trigger"`
	IntervalSeconds float64    `json:"interval_seconds"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
}

// DumpJob converts a registered job
func DumpJob(job *scheduler.Job) JobView {
	view := JobView{
		ID:              job.ID,
		Trigger:         string(job.Trigger),
		IntervalSeconds: job.Interval.Seconds(),
	}
	if !job.NextRunAt.IsZero() {
		next := job.NextRunAt.UTC()
		view.NextRunAt = &next
	}
	return view
}

// DumpJobs converts a list of jobs; the result is never nil
func DumpJobs(jobs []*scheduler.Job) []JobView {
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, DumpJob(job))
	}
	return views
}
