package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	b, err := scanBytes(value)
	if err != nil || b == nil {
		*a = StringArray{}
		return err
	}
	return json.Unmarshal(b, a)
}

// SourceList stores citations as a JSON column.
type SourceList []Source

// Value implements the driver.Valuer interface.
func (l SourceList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface.
func (l *SourceList) Scan(value interface{}) error {
	b, err := scanBytes(value)
	if err != nil || b == nil {
		*l = SourceList{}
		return err
	}
	return json.Unmarshal(b, l)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unsupported JSON column type")
	}
}

// ResearchRecord is the archived form of a job that reached a terminal status.
// Document bodies are not archived, only their names.
type ResearchRecord struct {
	ID            string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	Query         string      `gorm:"type:text;not null" json:"query"`
	Options       Options     `gorm:"embedded;embeddedPrefix:opt_" json:"options"`
	DocumentNames StringArray `gorm:"type:text" json:"document_names"`
	RemoteJobID   string      `gorm:"type:varchar(255);index:idx_research_remote" json:"remote_job_id,omitempty"`
	Status        JobStatus   `gorm:"type:varchar(20);index:idx_research_status" json:"status"`
	Content       string      `gorm:"type:text" json:"content,omitempty"`
	Sources       SourceList  `gorm:"type:text" json:"sources"`
	Error         string      `gorm:"type:text" json:"error,omitempty"`
	CreatedAt     time.Time   `gorm:"index:idx_research_created" json:"created_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ResearchRecord.
func (ResearchRecord) TableName() string {
	return "research_jobs"
}

// NewResearchRecord converts a job snapshot into its archived form.
func NewResearchRecord(job *Job) *ResearchRecord {
	names := make(StringArray, 0, len(job.Documents))
	for _, d := range job.Documents {
		names = append(names, d.Name)
	}
	rec := &ResearchRecord{
		ID:            job.ID,
		Query:         job.Query,
		Options:       job.Options,
		DocumentNames: names,
		RemoteJobID:   job.RemoteJobID,
		Status:        job.Status,
		Content:       job.Content,
		Sources:       SourceList(append([]Source(nil), job.Sources...)),
		Error:         job.Error,
		CreatedAt:     job.CreatedAt,
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		rec.CompletedAt = &t
	}
	return rec
}

// Job restores a job snapshot from the record. Documents carry names only.
func (r *ResearchRecord) Job() Job {
	job := Job{
		ID:          r.ID,
		Query:       r.Query,
		Options:     r.Options,
		RemoteJobID: r.RemoteJobID,
		Status:      r.Status,
		Stage:       StageDone,
		Content:     r.Content,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
	}
	if r.Status == JobStatusCompleted {
		job.Progress = 100
	}
	for _, name := range r.DocumentNames {
		job.Documents = append(job.Documents, Document{Name: name})
	}
	if len(r.Sources) > 0 {
		job.Sources = append([]Source(nil), r.Sources...)
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		job.CompletedAt = &t
	}
	return job
}
