// Package identity resolves transfer recipients from a CVU or an alias.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

// Directory is the read side of the ledger store the resolver needs.
type Directory interface {
	UserByCVU(ctx context.Context, cvu string) (*domain.User, error)
	UserByAlias(ctx context.Context, aliasLower string) (*domain.User, error)
}

type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// ResolveByCVU validates the CVU format before touching the store, so a bad
// CVU is a client validation error, never a lookup miss.
func (r *Resolver) ResolveByCVU(ctx context.Context, cvu string) (*domain.User, error) {
	if !domain.ValidCVU(cvu) {
		return nil, &domain.Error{
			Kind:    domain.KindInvalidFormat,
			Message: fmt.Sprintf("CVU must contain exactly %d numeric digits (got %d characters)", domain.CVULength, len(cvu)),
		}
	}

	user, err := r.dir.UserByCVU(ctx, cvu)
	if err != nil {
		return nil, lookupError(err, "no registered user owns that CVU")
	}
	return user, nil
}

// ResolveByAlias matches aliases case-insensitively.
func (r *Resolver) ResolveByAlias(ctx context.Context, alias string) (*domain.User, error) {
	normalized := domain.NormalizeAlias(alias)
	if normalized == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "alias is required")
	}

	user, err := r.dir.UserByAlias(ctx, normalized)
	if err != nil {
		return nil, lookupError(err, "no user found with that alias")
	}
	return user, nil
}

func lookupError(err error, notFoundMsg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.WrapError(domain.KindRecipientNotFound, notFoundMsg, err)
	}
	return domain.WrapError(domain.KindPersistenceFailure, "could not look up recipient", err)
}
