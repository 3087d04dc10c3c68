package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/accounts"
)

// VerifyTargetAccounts is the single ownership precondition for every command
// that creates or replaces a post's targets. It returns the distinct account
// ids in input order. An account that does not exist or belongs to someone
// else is a *common.ForbiddenError; a disconnected one is a validation error.
func VerifyTargetAccounts(ctx context.Context, repo accounts.Repository, userID string, accountIDs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(accountIDs))
	ids := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, common.Invalid("account_ids", "at least one target account is required")
	}

	for _, id := range ids {
		acct, err := repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.Forbidden(fmt.Sprintf("account %s does not belong to the user", id))
			}
			return nil, err
		}
		if acct.UserID != userID {
			return nil, common.Forbidden(fmt.Sprintf("account %s does not belong to the user", id))
		}
		if !acct.Active {
			return nil, common.Invalid("account_ids", fmt.Sprintf("account %s is disconnected", id))
		}
	}
	return ids, nil
}
