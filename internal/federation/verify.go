package federation

import (
	"context"
	"fmt"

	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/models"
	"github.com/sylvanet/arbor/internal/store"
)

// VerifyPersonInCommunity checks that the actor has standing to post into
// the community: not banned, and a member wherever the community
// restricts posting. Pure predicate over already-resolved entities; it
// performs no network access.
func VerifyPersonInCommunity(ctx context.Context, st store.EntityStore, person *models.Person, community *models.Community) error {
	banned, err := st.IsBanned(ctx, community.ID, person.ID)
	if err != nil {
		return err
	}
	if banned {
		return fmt.Errorf("federation: %q banned from %q: %w",
			person.ApID, community.ApID, apperr.ErrNotPermitted)
	}
	if community.PostingRestricted {
		member, err := st.IsMember(ctx, community.ID, person.ID)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("federation: %q not a member of restricted %q: %w",
				person.ApID, community.ApID, apperr.ErrNotPermitted)
		}
	}
	return nil
}
