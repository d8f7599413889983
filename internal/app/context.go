package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safetydesk/internal/config"
	"safetydesk/internal/domain"
	"safetydesk/internal/repo"
)

// ResolveAccountAndConfig picks the active account and ensures an account +
// config exist in DB, seeding defaults if missing. It prefers overrides, then
// single-account DB. If the account does not exist, it is created on the fly.
func ResolveAccountAndConfig(ctx context.Context, accountOverride string, r repo.Repo) (string, *config.Config, error) {
	accountID := accountOverride
	if accountID == "" {
		if a, err := r.SingleAccount(ctx); err == nil {
			accountID = a.ID
		} else {
			return "", nil, fmt.Errorf("account not specified; use --account")
		}
	}
	seedCfg := config.Default(accountID)

	if _, err := r.GetAccount(ctx, accountID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createAccount(ctx, r, accountID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetAccountConfig(ctx, accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertAccountConfig(ctx, accountID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed account config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Account.ID = accountID
	return accountID, cfg, nil
}

func createAccount(ctx context.Context, r repo.Repo, accountID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(accountID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	a := domain.Account{ID: accountID, CreatedAt: now}
	if _, err := tx.ExecContext(ctx, `INSERT INTO accounts(id,name,created_at) VALUES (?,?,?)`,
		a.ID, a.Name, a.CreatedAt); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if err := r.UpsertAccountConfigTx(ctx, tx, accountID, seedCfg); err != nil {
		return fmt.Errorf("insert account config: %w", err)
	}
	return tx.Commit()
}
