package postgres

import (
	"context"
	"errors"
	"fmt"

	"funcapp-deploy/internal/core/funcapp"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists deployment records in PostgreSQL through gorm.
type Store struct {
	db *gorm.DB
	lg zerolog.Logger
}

// New connects to dsn and migrates the deployments table.
func New(dsn string, lg zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&funcapp.Deployment{}); err != nil {
		return nil, fmt.Errorf("migrate deployments: %w", err)
	}
	s := &Store{db: db, lg: lg.With().Str("adapter", "postgres").Logger()}
	s.lg.Info().Msg("deployment store ready")
	return s, nil
}

func (s *Store) Create(ctx context.Context, d *funcapp.Deployment) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *Store) Save(ctx context.Context, d *funcapp.Deployment) error {
	return s.db.WithContext(ctx).Save(d).Error
}

func (s *Store) Get(ctx context.Context, id string) (*funcapp.Deployment, error) {
	var d funcapp.Deployment
	err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, funcapp.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) List(ctx context.Context) ([]funcapp.Deployment, error) {
	var out []funcapp.Deployment
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
