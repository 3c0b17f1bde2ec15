package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"damage-assessor/api/internal/damage"
)

var ErrNotFound = errors.New("record not found")

// Record: сохранённый результат анализа одного снимка.
type Record struct {
	ID        string                `json:"id"`
	CreatedAt time.Time             `json:"createdAt"`
	SessionID string                `json:"sessionId,omitempty"`
	ImageName string                `json:"imageName"`
	ImageHash string                `json:"imageHash"`
	Engine    string                `json:"engine"`
	Model     string                `json:"model"`
	Result    damage.AnalysisResult `json:"result"`
}

// NewRecord заполняет id и время создания.
func NewRecord(sessionID, imageName, imageHash, engine, model string, res damage.AnalysisResult) Record {
	return Record{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		SessionID: sessionID,
		ImageName: imageName,
		ImageHash: imageHash,
		Engine:    engine,
		Model:     model,
		Result:    res,
	}
}

func (r Record) totalCost() float64 {
	var sum float64
	for _, d := range r.Result.Damages {
		sum += d.EstimatedCost
	}
	return sum
}

type Statistics struct {
	TotalAnalyses      int64            `json:"totalAnalyses"`
	TotalDamages       int64            `json:"totalDamages"`
	TotalEstimatedCost float64          `json:"totalEstimatedCost"`
	AvgEstimatedCost   float64          `json:"avgEstimatedCost"`
	ByCondition        map[string]int64 `json:"byCondition"`
	ByEngine           map[string]int64 `json:"byEngine"`
}

type Page struct {
	Data   []Record `json:"data"`
	Total  int64    `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// Store: история анализов. Реализации: Postgres и SQLite.
type Store interface {
	Save(ctx context.Context, r Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, limit, offset int) (Page, error)
	Delete(ctx context.Context, id string) error
	FindByHash(ctx context.Context, imageHash, engine, model string, maxAge time.Duration) (Record, error)
	Statistics(ctx context.Context) (Statistics, error)
	Ping(ctx context.Context) error
	Close() error
}

// NormalizePage приводит limit/offset к допустимым значениям.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
