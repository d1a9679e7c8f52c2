package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/BatiOli9/IDDO/internal/core/domain"
	"github.com/BatiOli9/IDDO/internal/core/security"
)

// Demo is what SeedDemo created. Keys maps user names to raw API keys.
type Demo struct {
	Users []domain.User
	Keys  map[string]string
}

// SeedDemo loads a small family for local development: two adults, a minor
// with guardian limits, and the minor's guardian.
func SeedDemo(ctx context.Context, s *Store) (*Demo, error) {
	perTx := decimal.NewFromInt(500)
	perDay := decimal.NewFromInt(1000)

	seed := []struct {
		user    domain.User
		balance int64
	}{
		{domain.User{Name: "Ana Gómez", CVU: "0000003100010000000001", Alias: "ana.iddo", Email: "ana@example.com"}, 10000},
		{domain.User{Name: "Beto Ruiz", CVU: "0000003100010000000002", Alias: "beto.pago", Email: "beto@example.com"}, 500},
		{domain.User{Name: "Tomi Gómez", CVU: "0000003100010000000003", Alias: "tomi.kid", IsMinor: true,
			PerTransactionLimit: &perTx, PerDayLimit: &perDay}, 3000},
		{domain.User{Name: "Laura Gómez", CVU: "0000003100010000000004", Alias: "laura.mama", Email: "laura@example.com"}, 0},
	}

	demo := &Demo{Keys: make(map[string]string, len(seed))}
	for _, sd := range seed {
		acc, err := s.AddUser(sd.user, decimal.NewFromInt(sd.balance))
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", sd.user.Name, err)
		}
		u, err := s.User(ctx, acc.UserID)
		if err != nil {
			return nil, err
		}
		key, hash, err := security.GenerateAPIKey()
		if err != nil {
			return nil, err
		}
		if err := s.SaveAPIKey(ctx, u.ID, hash, key[:len(security.KeyPrefix)+4]); err != nil {
			return nil, err
		}
		demo.Users = append(demo.Users, *u)
		demo.Keys[u.Name] = key
	}

	// Laura is Tomi's guardian.
	if err := s.LinkGuardian(demo.Users[2].ID, demo.Users[3].ID); err != nil {
		return nil, err
	}
	return demo, nil
}
