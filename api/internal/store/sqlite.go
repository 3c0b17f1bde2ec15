package store

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"damage-assessor/api/internal/damage"
)

type analysisRow struct {
	ID               string    `gorm:"primaryKey"`
	CreatedAt        time.Time `gorm:"index"`
	SessionID        string
	ImageName        string
	ImageHash        string `gorm:"index:idx_damage_hash"`
	Engine           string `gorm:"index:idx_damage_hash"`
	Model            string `gorm:"index:idx_damage_hash"`
	OverallCondition string
	DamageCount      int
	TotalCost        float64
	Result           damage.AnalysisResult `gorm:"serializer:json"`
}

func (analysisRow) TableName() string { return "damage_analyses" }

func rowFrom(r Record) analysisRow {
	return analysisRow{
		ID:               r.ID,
		CreatedAt:        r.CreatedAt,
		SessionID:        r.SessionID,
		ImageName:        r.ImageName,
		ImageHash:        r.ImageHash,
		Engine:           r.Engine,
		Model:            r.Model,
		OverallCondition: string(r.Result.OverallCondition),
		DamageCount:      len(r.Result.Damages),
		TotalCost:        r.totalCost(),
		Result:           r.Result,
	}
}

func (a analysisRow) record() Record {
	return Record{
		ID:        a.ID,
		CreatedAt: a.CreatedAt,
		SessionID: a.SessionID,
		ImageName: a.ImageName,
		ImageHash: a.ImageHash,
		Engine:    a.Engine,
		Model:     a.Model,
		Result:    a.Result,
	}
}

// SQLite: локальная история без внешней БД.
type SQLite struct{ DB *gorm.DB }

var _ Store = (*SQLite)(nil)

func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&analysisRow{}); err != nil {
		return nil, err
	}
	return &SQLite{DB: db}, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLite) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLite) Save(ctx context.Context, r Record) error {
	row := rowFrom(r)
	return s.DB.WithContext(ctx).Create(&row).Error
}

func (s *SQLite) Get(ctx context.Context, id string) (Record, error) {
	var row analysisRow
	if err := s.DB.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return Record{}, notFound(err)
	}
	return row.record(), nil
}

func (s *SQLite) List(ctx context.Context, limit, offset int) (Page, error) {
	limit, offset = NormalizePage(limit, offset)
	page := Page{Data: []Record{}, Limit: limit, Offset: offset}

	var rows []analysisRow
	db := s.DB.WithContext(ctx)
	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return Page{}, err
	}
	if err := db.Model(&analysisRow{}).Count(&page.Total).Error; err != nil {
		return Page{}, err
	}
	for _, r := range rows {
		page.Data = append(page.Data, r.record())
	}
	return page, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Delete(&analysisRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) FindByHash(ctx context.Context, imageHash, engine, model string, maxAge time.Duration) (Record, error) {
	var row analysisRow
	err := s.DB.WithContext(ctx).
		Where("image_hash = ? AND engine = ? AND model = ?", imageHash, engine, model).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		return Record{}, notFound(err)
	}
	if maxAge > 0 && time.Since(row.CreatedAt) > maxAge {
		return Record{}, ErrNotFound
	}
	return row.record(), nil
}

func (s *SQLite) Statistics(ctx context.Context) (Statistics, error) {
	st := Statistics{ByCondition: map[string]int64{}, ByEngine: map[string]int64{}}
	db := s.DB.WithContext(ctx)

	var agg struct {
		Total   int64
		Damages int64
		Cost    float64
		AvgCost float64
	}
	err := db.Model(&analysisRow{}).
		Select("COUNT(*) AS total, COALESCE(SUM(damage_count),0) AS damages, COALESCE(SUM(total_cost),0) AS cost, COALESCE(AVG(total_cost),0) AS avg_cost").
		Scan(&agg).Error
	if err != nil {
		return Statistics{}, err
	}
	st.TotalAnalyses, st.TotalDamages, st.TotalEstimatedCost, st.AvgEstimatedCost = agg.Total, agg.Damages, agg.Cost, agg.AvgCost

	for col, into := range map[string]map[string]int64{"overall_condition": st.ByCondition, "engine": st.ByEngine} {
		var groups []struct {
			Grp string
			N   int64
		}
		if err := db.Model(&analysisRow{}).Select(col + " AS grp, COUNT(*) AS n").Group(col).Scan(&groups).Error; err != nil {
			return Statistics{}, err
		}
		for _, g := range groups {
			into[g.Grp] = g.N
		}
	}
	return st, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
