package postgres

import (
	"context"
	"encoding/json"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

type ProfileRepository struct {
	BaseRepository
}

func NewProfileRepository(pool Querier) *ProfileRepository {
	return &ProfileRepository{BaseRepository: NewBaseRepository(pool)}
}

func (r *ProfileRepository) Upsert(ctx context.Context, p *models.UserProfile) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO user_profiles (user_id, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		p.UserID, payload, p.UpdatedAt)
	return err
}

// Get returns an empty profile, not an error, for unknown users.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var payload []byte
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT payload FROM user_profiles WHERE user_id = $1`, userID).Scan(&payload)
	if err != nil {
		if checkNoRows(err) {
			return &models.UserProfile{UserID: userID}, nil
		}
		return nil, err
	}

	var p models.UserProfile
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	p.UserID = userID
	return &p, nil
}
