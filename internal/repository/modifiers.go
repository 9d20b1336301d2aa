package repository

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/domain"
	"gopkg.in/yaml.v3"
)

// ModifierStore is the persistence surface the seeder writes through.
type ModifierStore interface {
	UpsertModifier(ctx context.Context, m domain.StructureModifier) error
}

// FileRepository loads operator-maintained seed files from disk.
type FileRepository struct {
	log zerolog.Logger
}

// NewFileRepository creates a new file-based repository
func NewFileRepository(log zerolog.Logger) *FileRepository {
	return &FileRepository{
		log: log.With().Str("module", "repository").Logger(),
	}
}

// GetModifiers reads belt lifetime modifiers from a YAML file.
func (r *FileRepository) GetModifiers(ctx context.Context, path string) ([]domain.StructureModifier, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file does not exist: %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	modifiers := []domain.StructureModifier{}
	if err := yaml.Unmarshal(b, &modifiers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	return modifiers, nil
}

// SeedModifiers loads the modifier file and upserts every entry into store.
// Entries with a non-positive modifier or missing structure id are rejected.
func (r *FileRepository) SeedModifiers(ctx context.Context, path string, store ModifierStore) (int, error) {
	modifiers, err := r.GetModifiers(ctx, path)
	if err != nil {
		return 0, err
	}

	for _, m := range modifiers {
		if m.StructureID <= 0 {
			return 0, fmt.Errorf("modifier entry is missing structure_id")
		}
		if m.BeltLifetimeModifier <= 0 {
			return 0, fmt.Errorf("modifier for structure %d must be positive, got %v", m.StructureID, m.BeltLifetimeModifier)
		}
		if err := store.UpsertModifier(ctx, m); err != nil {
			return 0, err
		}
	}

	r.log.Debug().Str("path", path).Int("count", len(modifiers)).Msg("seeded belt lifetime modifiers")
	return len(modifiers), nil
}
