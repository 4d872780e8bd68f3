// ABOUTME: SQLite persistence for finished and in-flight scan state via gorm.
// ABOUTME: Save is an idempotent upsert: the scan row plus fully replaced child rows.

package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type scanRecord struct {
	ScanID     string `gorm:"primaryKey"`
	Target     string
	Mode       string
	RepoURL    string
	RepoBranch string
	TargetURL  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type findingRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ScanID      string `gorm:"index"`
	Ordinal     int
	FindingID   string
	Title       string
	Severity    string
	Description string
	Remediation string
	SourceAgent string
	References  string
	Metadata    string
}

type progressRecord struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ScanID          string `gorm:"index"`
	Agent           string
	Status          string
	StartedAt       *time.Time
	EndedAt         *time.Time
	PercentComplete float64
	Message         string
}

type thoughtRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ScanID     string `gorm:"index"`
	Agent      string
	Thought    string
	ActionPlan string
	Timestamp  time.Time
}

type voiceEventRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ScanID    string `gorm:"index"`
	EventType string
	Message   string
	Timestamp time.Time
	Metadata  string
}

type logRecord struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	ScanID  string `gorm:"index"`
	Ordinal int
	Line    string
}

// Store persists scans to a SQLite database
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Open creates or opens the scan database and migrates the schema
func Open(path string, logger *logrus.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open scan database: %w", err)
	}

	if err := db.AutoMigrate(
		&scanRecord{},
		&findingRecord{},
		&progressRecord{},
		&thoughtRecord{},
		&voiceEventRecord{},
		&logRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate scan database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"component": "store",
		"path":      path,
	}).Info("Scan database ready")

	return &Store{db: db, logger: logger}, nil
}

// Save upserts the scan row and replaces all child rows. Saving the same
// snapshot twice leaves the database identical.
func (s *Store) Save(scan *types.ScanStatus) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		row := scanRecord{
			ScanID:     scan.ScanID,
			Target:     scan.Target,
			Mode:       scan.Mode,
			RepoURL:    scan.RepoURL,
			RepoBranch: scan.RepoBranch,
			TargetURL:  scan.TargetURL,
			CreatedAt:  scan.CreatedAt,
			UpdatedAt:  time.Now().UTC(),
		}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}

		for _, model := range []any{
			&findingRecord{}, &progressRecord{}, &thoughtRecord{},
			&voiceEventRecord{}, &logRecord{},
		} {
			if err := tx.Where("scan_id = ?", scan.ScanID).Delete(model).Error; err != nil {
				return err
			}
		}

		for i, f := range scan.Findings {
			rec := findingRecord{
				ScanID:      scan.ScanID,
				Ordinal:     i,
				FindingID:   f.ID,
				Title:       f.Title,
				Severity:    string(f.Severity),
				Description: f.Description,
				Remediation: f.Remediation,
				SourceAgent: string(f.SourceAgent),
				References:  marshalJSON(f.References),
				Metadata:    marshalJSON(f.Metadata),
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}

		for _, p := range scan.Progress {
			rec := progressRecord{
				ScanID:          scan.ScanID,
				Agent:           string(p.Agent),
				Status:          string(p.Status),
				StartedAt:       p.StartedAt,
				EndedAt:         p.EndedAt,
				PercentComplete: p.PercentComplete,
				Message:         p.Message,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}

		for _, th := range scan.Thoughts {
			rec := thoughtRecord{
				ScanID:     scan.ScanID,
				Agent:      string(th.Agent),
				Thought:    th.Thought,
				ActionPlan: th.ActionPlan,
				Timestamp:  th.Timestamp,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}

		for _, v := range scan.VoiceEvents {
			rec := voiceEventRecord{
				ScanID:    scan.ScanID,
				EventType: string(v.EventType),
				Message:   v.Message,
				Timestamp: v.Timestamp,
				Metadata:  marshalJSON(v.Metadata),
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}

		for i, line := range scan.Logs {
			rec := logRecord{ScanID: scan.ScanID, Ordinal: i, Line: line}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// Load reassembles one scan from its rows. Returns gorm.ErrRecordNotFound
// when the scan id is unknown.
func (s *Store) Load(scanID string) (*types.ScanStatus, error) {
	var row scanRecord
	if err := s.db.First(&row, "scan_id = ?", scanID).Error; err != nil {
		return nil, err
	}

	scan := &types.ScanStatus{
		ScanID:     row.ScanID,
		Target:     row.Target,
		Mode:       row.Mode,
		RepoURL:    row.RepoURL,
		RepoBranch: row.RepoBranch,
		TargetURL:  row.TargetURL,
		CreatedAt:  row.CreatedAt,
	}

	var findings []findingRecord
	if err := s.db.Where("scan_id = ?", scanID).Order("ordinal").Find(&findings).Error; err != nil {
		return nil, err
	}
	for _, rec := range findings {
		f := types.Finding{
			ID:          rec.FindingID,
			Title:       rec.Title,
			Severity:    types.Severity(rec.Severity),
			Description: rec.Description,
			Remediation: rec.Remediation,
			SourceAgent: types.AgentName(rec.SourceAgent),
		}
		unmarshalJSON(rec.References, &f.References)
		unmarshalJSON(rec.Metadata, &f.Metadata)
		scan.Findings = append(scan.Findings, f)
	}

	var progress []progressRecord
	if err := s.db.Where("scan_id = ?", scanID).Order("id").Find(&progress).Error; err != nil {
		return nil, err
	}
	for _, rec := range progress {
		scan.Progress = append(scan.Progress, &types.AgentProgress{
			Agent:           types.AgentName(rec.Agent),
			Status:          types.AgentStatus(rec.Status),
			StartedAt:       rec.StartedAt,
			EndedAt:         rec.EndedAt,
			PercentComplete: rec.PercentComplete,
			Message:         rec.Message,
		})
	}

	var thoughts []thoughtRecord
	if err := s.db.Where("scan_id = ?", scanID).Order("id").Find(&thoughts).Error; err != nil {
		return nil, err
	}
	for _, rec := range thoughts {
		scan.Thoughts = append(scan.Thoughts, types.AgentThought{
			Agent:      types.AgentName(rec.Agent),
			Thought:    rec.Thought,
			ActionPlan: rec.ActionPlan,
			Timestamp:  rec.Timestamp,
		})
	}

	var voiceEvents []voiceEventRecord
	if err := s.db.Where("scan_id = ?", scanID).Order("id").Find(&voiceEvents).Error; err != nil {
		return nil, err
	}
	for _, rec := range voiceEvents {
		ev := types.VoiceEvent{
			ScanID:    scanID,
			EventType: types.VoiceEventType(rec.EventType),
			Message:   rec.Message,
			Timestamp: rec.Timestamp,
		}
		unmarshalJSON(rec.Metadata, &ev.Metadata)
		scan.VoiceEvents = append(scan.VoiceEvents, ev)
	}

	var logs []logRecord
	if err := s.db.Where("scan_id = ?", scanID).Order("ordinal").Find(&logs).Error; err != nil {
		return nil, err
	}
	for _, rec := range logs {
		scan.Logs = append(scan.Logs, rec.Line)
	}

	return scan, nil
}

// List returns all persisted scans, newest first
func (s *Store) List() ([]*types.ScanStatus, error) {
	var rows []scanRecord
	if err := s.db.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.loadAll(rows)
}

// Search returns scans whose target contains the query, newest first,
// capped at limit (0 means no cap)
func (s *Store) Search(target string, limit int) ([]*types.ScanStatus, error) {
	q := s.db.Order("created_at desc").Where("target LIKE ?", "%"+target+"%")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []scanRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.loadAll(rows)
}

func (s *Store) loadAll(rows []scanRecord) ([]*types.ScanStatus, error) {
	scans := make([]*types.ScanStatus, 0, len(rows))
	for _, row := range rows {
		scan, err := s.Load(row.ScanID)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, nil
}

// Close releases the underlying database handle
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func marshalJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalJSON(data string, v any) {
	if data == "" {
		return
	}
	_ = json.Unmarshal([]byte(data), v)
}
