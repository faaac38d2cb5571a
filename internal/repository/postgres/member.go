package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository"
)

const memberColumns = `member_id, provider_id, active, first_name, last_name, create_time, update_time,
	tryv_userid, address, fallback_time_zone, email, synth, phone_number, height, gender,
	date_of_birth, databroker_info, consent, provider_details`

type memberRepository struct {
	BaseRepository
}

func NewMemberRepository(db *sqlx.DB) repository.MemberRepository {
	return &memberRepository{NewBaseRepository(db)}
}

func (r *memberRepository) GetByID(ctx context.Context, providerID, memberID string) (*model.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE provider_id = $1 AND member_id = $2`
	return r.get(ctx, query, providerID, memberID)
}

// Email and phone are not unique; the lowest member_id wins.
func (r *memberRepository) GetByEmail(ctx context.Context, providerID, email string) (*model.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members
		WHERE provider_id = $1 AND lower(email) = lower($2)
		ORDER BY member_id LIMIT 1`
	return r.get(ctx, query, providerID, email)
}

func (r *memberRepository) GetByPhone(ctx context.Context, providerID, phone string) (*model.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members
		WHERE provider_id = $1 AND phone_number = $2
		ORDER BY member_id LIMIT 1`
	return r.get(ctx, query, providerID, phone)
}

func (r *memberRepository) get(ctx context.Context, query string, args ...interface{}) (*model.Member, error) {
	var member model.Member
	if err := r.db.GetContext(ctx, &member, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get member: %w", notFound(err))
	}
	return &member, nil
}

func (r *memberRepository) BelongsToProvider(ctx context.Context, memberID, providerID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM members WHERE member_id = $1 AND provider_id = $2)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, memberID, providerID); err != nil {
		return false, fmt.Errorf("failed to check member ownership: %w", err)
	}
	return exists, nil
}
