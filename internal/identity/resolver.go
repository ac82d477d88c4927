// Package identity maps a PWD profile to the account that should hear about it.
package identity

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
)

// Resolver finds the account linked to a profile. Two linkages exist: a member
// account whose id_number equals the profile's PWD number, and the submitting
// account recorded on the profile's registration cases. The number match wins.
type Resolver struct {
	users *repositories.UserRepository
	cases *repositories.CaseRepository
}

// NewResolver creates a Resolver
func NewResolver(db *sqlx.DB) *Resolver {
	return &Resolver{
		users: repositories.NewUserRepository(db),
		cases: repositories.NewCaseRepository(db),
	}
}

// ResolveAccountFor returns the account linked to profile, or nil when none is.
// When both linkages resolve to different accounts the number match is returned
// and the ambiguity is logged.
func (r *Resolver) ResolveAccountFor(ctx context.Context, profile *models.Profile) (*models.User, error) {
	var byNumber *models.User
	if profile.HasNumber() {
		u, err := r.users.GetByIDNumber(ctx, *profile.PWDNumber)
		if err != nil {
			return nil, err
		}
		byNumber = u
	}

	bySubmission, err := r.submitter(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	switch {
	case byNumber != nil:
		if bySubmission != nil && bySubmission.ID != byNumber.ID {
			slog.Warn("profile links to two different accounts; using PWD number match",
				"profile_id", profile.ID,
				"number_account", byNumber.ID,
				"submitter_account", bySubmission.ID)
		}
		return byNumber, nil
	case bySubmission != nil:
		return bySubmission, nil
	}
	return nil, nil
}

func (r *Resolver) submitter(ctx context.Context, profileID string) (*models.User, error) {
	c, err := r.cases.LatestSubmitterCase(ctx, profileID)
	if err != nil || c == nil || c.UserID == nil {
		return nil, err
	}
	return r.users.GetByID(ctx, *c.UserID)
}
