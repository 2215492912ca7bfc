// Package persist gives the engine's dev-history, blacklist, and realized
// PnL ledger durability across restarts. The in-memory EngineState map
// remains the source of truth during a run; this package only makes a
// cold start resume from the last checkpoint instead of re-admitting
// every dev wallet at zero history.
package persist

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DevHistory persists one row per creator wallet ever seen.
type DevHistory struct {
	Wallet          string `gorm:"primaryKey"`
	TokenCount      int
	LastTicker      string
	BlacklistExpiry *time.Time
	UpdatedAt       time.Time
}

// Settlement is an append-only ledger row, one per SELL.
type Settlement struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	Mint      string `gorm:"index"`
	EntrySol  decimal.Decimal `gorm:"type:decimal(20,9)"`
	EntryPrice decimal.Decimal `gorm:"type:decimal(30,18)"`
	ExitPrice decimal.Decimal `gorm:"type:decimal(30,18)"`
	PnLSol    decimal.Decimal `gorm:"type:decimal(20,9)"`
	Reason    string
	SettledAt time.Time
}

// EngineSnapshot is a periodic checkpoint of the running scalars.
type EngineSnapshot struct {
	ID               uint `gorm:"primaryKey;autoIncrement"`
	ProfitSol        decimal.Decimal `gorm:"type:decimal(20,9)"`
	InvestedSol      decimal.Decimal `gorm:"type:decimal(20,9)"`
	TotalInvestedSol decimal.Decimal `gorm:"type:decimal(20,9)"`
	TakenAt          time.Time
}

// Store wraps a gorm.DB over the three tables above.
type Store struct {
	db *gorm.DB
}

// Open connects using driver ("sqlite" or "postgres") and dsn, creating
// the sqlite parent directory if needed, and auto-migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var db *gorm.DB
	var err error

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch {
	case driver == "postgres" || strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("persist: connected (postgres)")
	default:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("persist: connected (sqlite)")
	}

	if err := db.AutoMigrate(&DevHistory{}, &Settlement{}, &EngineSnapshot{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// LoadDevHistories returns every persisted dev wallet row.
func (s *Store) LoadDevHistories() ([]DevHistory, error) {
	var rows []DevHistory
	err := s.db.Find(&rows).Error
	return rows, err
}

// UpsertDevHistory writes the current view of one dev wallet's history.
func (s *Store) UpsertDevHistory(h DevHistory) error {
	h.UpdatedAt = time.Now()
	return s.db.Save(&h).Error
}

// RecordSettlement appends one realized-PnL ledger row.
func (s *Store) RecordSettlement(row Settlement) error {
	return s.db.Create(&row).Error
}

// Checkpoint records the current running scalars.
func (s *Store) Checkpoint(snap EngineSnapshot) error {
	return s.db.Create(&snap).Error
}

// LatestSnapshot returns the most recent checkpoint, if any.
func (s *Store) LatestSnapshot() (*EngineSnapshot, error) {
	var snap EngineSnapshot
	err := s.db.Order("id desc").First(&snap).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Reset drops and recreates every table, discarding all history. Intended
// for the db_setup operator tool, never called from the engine itself.
func (s *Store) Reset() error {
	if err := s.db.Migrator().DropTable(&DevHistory{}, &Settlement{}, &EngineSnapshot{}); err != nil {
		return err
	}
	return s.db.AutoMigrate(&DevHistory{}, &Settlement{}, &EngineSnapshot{})
}
