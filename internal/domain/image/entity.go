package image

import (
	"strings"
	"time"
)

// Status tracks where an image is in the background-removal lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further status change is accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var statusRank = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// CanTransition reports whether a record in status from may move to status to.
// Forward skips are allowed; terminal statuses only accept themselves.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from.Terminal() || !to.Valid() {
		return false
	}
	return statusRank[to] > statusRank[from]
}

// Image is one row of the images table.
type Image struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OriginalURL  string    `gorm:"column:original_url;not null" json:"originalUrl"`
	ProcessedURL *string   `gorm:"column:processed_url" json:"processedUrl"`
	Status       Status    `gorm:"column:status;not null;default:pending;index" json:"status"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Image) TableName() string { return "images" }

// Patch carries the fields an update may change. Nil means "leave as is".
type Patch struct {
	ProcessedURL *string
	Status       *Status
}

// Apply merges p into img, enforcing the lifecycle rules. img is left
// untouched when an error is returned.
func (img *Image) Apply(p Patch) error {
	status := img.Status
	if p.Status != nil {
		if !CanTransition(img.Status, *p.Status) {
			return &TransitionError{From: img.Status, To: *p.Status}
		}
		status = *p.Status
	}

	processed := img.ProcessedURL
	if p.ProcessedURL != nil {
		v := strings.TrimSpace(*p.ProcessedURL)
		processed = &v
	}

	if status == StatusCompleted && (processed == nil || *processed == "") {
		return ErrProcessedURLRequired
	}
	if status != StatusCompleted && p.ProcessedURL != nil {
		return ErrProcessedURLNotAllowed
	}

	img.Status = status
	img.ProcessedURL = processed
	return nil
}
