package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lingoria/school-ops-api/internal/models"
)

// LevelRepository reads the language level reference table.
type LevelRepository struct {
	db *sqlx.DB
}

// NewLevelRepository constructs a LevelRepository.
func NewLevelRepository(db *sqlx.DB) *LevelRepository {
	return &LevelRepository{db: db}
}

// List returns every language level in sort order.
func (r *LevelRepository) List(ctx context.Context) ([]models.LanguageLevel, error) {
	const query = `SELECT id, code, name, level_group, sort_order, created_at FROM language_levels ORDER BY sort_order ASC`
	var levels []models.LanguageLevel
	if err := r.db.SelectContext(ctx, &levels, query); err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	return levels, nil
}

// FindByID fetches a level by ID.
func (r *LevelRepository) FindByID(ctx context.Context, id string) (*models.LanguageLevel, error) {
	const query = `SELECT id, code, name, level_group, sort_order, created_at FROM language_levels WHERE id = $1`
	var level models.LanguageLevel
	if err := r.db.GetContext(ctx, &level, query, id); err != nil {
		return nil, err
	}
	return &level, nil
}

// FindByCode fetches a level by its code ("a1.1").
func (r *LevelRepository) FindByCode(ctx context.Context, code string) (*models.LanguageLevel, error) {
	const query = `SELECT id, code, name, level_group, sort_order, created_at FROM language_levels WHERE code = $1`
	var level models.LanguageLevel
	if err := r.db.GetContext(ctx, &level, query, code); err != nil {
		return nil, err
	}
	return &level, nil
}

// Seed inserts reference levels, skipping codes that already exist. Used by
// the import CLI only; the table is immutable at runtime.
func (r *LevelRepository) Seed(ctx context.Context, levels []models.LanguageLevel) error {
	const query = `INSERT INTO language_levels (id, code, name, level_group, sort_order, created_at)
        VALUES (:id, :code, :name, :level_group, :sort_order, :created_at)
        ON CONFLICT (code) DO NOTHING`
	for i := range levels {
		if levels[i].ID == "" {
			levels[i].ID = uuid.NewString()
		}
		if levels[i].CreatedAt.IsZero() {
			levels[i].CreatedAt = time.Now().UTC()
		}
		if _, err := r.db.NamedExecContext(ctx, query, levels[i]); err != nil {
			return fmt.Errorf("seed level %s: %w", levels[i].Code, err)
		}
	}
	return nil
}
