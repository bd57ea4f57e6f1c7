package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"archie-backend/internal/storage"
)

// Interaction is one question/answer exchange, recorded for later offline
// analysis. The collector fills in the id, timestamp, lengths, and the
// guest placeholder.
type Interaction struct {
	ID                    uuid.UUID `json:"interaction_id"`
	Timestamp             time.Time `json:"timestamp"`
	SessionID             string    `json:"session_id"`
	UserEmail             string    `json:"user_email"`
	IPAddress             string    `json:"ip_address"`
	DeviceInfo            string    `json:"device_info"`
	Question              string    `json:"question"`
	QuestionLength        int       `json:"question_length"`
	Answer                string    `json:"answer"`
	AnswerLength          int       `json:"answer_length"`
	GenerationTimeSeconds float64   `json:"generation_time_seconds"`
}

// Collector is a write-only sink for interaction records.
type Collector interface {
	LogInteraction(ctx context.Context, rec Interaction) error

	Close()
}

func finalize(rec Interaction) Interaction {
	rec.ID = uuid.New()
	rec.Timestamp = time.Now().UTC()
	if rec.UserEmail == "" {
		rec.UserEmail = "guest"
	}
	rec.QuestionLength = len(rec.Question)
	rec.AnswerLength = len(rec.Answer)
	rec.GenerationTimeSeconds = math.Round(rec.GenerationTimeSeconds*100) / 100
	return rec
}

// FileCollector appends records to a single JSON array document. A corrupt
// or missing document restarts as an empty array.
type FileCollector struct {
	mu      sync.Mutex
	objects storage.ObjectStore
	key     string
}

var _ Collector = (*FileCollector)(nil)

func NewFileCollector(objects storage.ObjectStore, key string) *FileCollector {
	return &FileCollector{objects: objects, key: key}
}

func (c *FileCollector) LogInteraction(ctx context.Context, rec Interaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var records []Interaction
	data, err := c.objects.GetObject(ctx, c.key)
	if err == nil {
		if err := json.Unmarshal(data, &records); err != nil {
			slog.Warn("analytics document is corrupted, starting fresh", "key", c.key, "error", err)
			records = nil
		}
	} else if !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("failed to read analytics document %s: %w", c.key, err)
	}

	records = append(records, finalize(rec))

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize analytics document %s: %w", c.key, err)
	}
	if err := c.objects.PutObject(ctx, c.key, bytes.NewReader(out)); err != nil {
		return fmt.Errorf("failed to persist analytics document %s: %w", c.key, err)
	}
	return nil
}

func (c *FileCollector) Close() {}
