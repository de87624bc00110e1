// Package events publishes notifications about stored prediction results.
package events

import (
	"context"
	"time"
)

// ResultCreated is emitted after a prediction result has been persisted.
type ResultCreated struct {
	ResultID  uint      `json:"result_id"`
	PatientID uint      `json:"patient_id"`
	Label     string    `json:"label"`
	ImagePath string    `json:"image_path"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	PublishResultCreated(ctx context.Context, event ResultCreated) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// PublishResultCreated implements Publisher.
func (NopPublisher) PublishResultCreated(context.Context, ResultCreated) error { return nil }
