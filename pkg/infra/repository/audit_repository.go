package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SecurityEventRow is the persisted form of a dispatched alert.
type SecurityEventRow struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	Severity   string    `gorm:"index"`
	EventType  string    `gorm:"index"`
	Identifier string    `gorm:"index"`
	Path       string
	Method     string
	Details    string    `gorm:"type:jsonb"`
	CreatedAt  time.Time `gorm:"index"`
}

func (SecurityEventRow) TableName() string {
	return "security_events"
}

// BanRow records every ban the penalty box issues, for offline review.
type BanRow struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	Identifier  string `gorm:"index"`
	BanCount    int
	BannedUntil time.Time
	Reason      string
	CreatedAt   time.Time `gorm:"index"`
}

func (BanRow) TableName() string {
	return "bans"
}

// AuditRepository persists security events and bans. It implements
// alert.AuditSink; writes are best effort and never sit on a request path.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) SaveAlert(ctx context.Context, alert types.SecurityAlert) error {
	details, err := json.Marshal(alert.Details)
	if err != nil {
		details = []byte("{}")
	}
	row := SecurityEventRow{
		ID:         alert.ID,
		Severity:   string(alert.Severity),
		EventType:  alert.EventType,
		Identifier: alert.Identifier,
		Path:       alert.Path,
		Method:     alert.Method,
		Details:    string(details),
		CreatedAt:  alert.Timestamp,
	}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *AuditRepository) SaveBan(ctx context.Context, identifier string, banCount int, bannedUntil time.Time, reason string) error {
	row := BanRow{
		ID:          uuid.New().String(),
		Identifier:  identifier,
		BanCount:    banCount,
		BannedUntil: bannedUntil,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *AuditRepository) ListRecentEvents(ctx context.Context, since time.Time, limit int) ([]SecurityEventRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []SecurityEventRow
	if err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AuditRepository) ListBans(ctx context.Context, identifier string, limit int) ([]BanRow, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if identifier != "" {
		query = query.Where("identifier = ?", identifier)
	}
	var rows []BanRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
