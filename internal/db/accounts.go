package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// UpsertAccount inserts a social account or, when the same (user, platform,
// platform user) triple already exists, overwrites its tokens and reactivates
// it. The row keeps its original id across reconnects.
func (r *Repository) UpsertAccount(ctx context.Context, acct *SocialAccount) error {
	query := `
		INSERT INTO social_accounts (
			id, user_id, org_id, platform, platform_user_id, display_name,
			access_token, refresh_token, token_expiry, scopes, status, last_sync_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW()
		)
		ON CONFLICT (user_id, platform, platform_user_id) DO UPDATE SET
			display_name  = EXCLUDED.display_name,
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry  = EXCLUDED.token_expiry,
			scopes        = EXCLUDED.scopes,
			status        = EXCLUDED.status,
			last_sync_at  = NOW(),
			updated_at    = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		acct.ID,
		acct.UserID,
		acct.OrgID,
		acct.Platform,
		acct.PlatformUserID,
		acct.DisplayName,
		acct.AccessToken,
		acct.RefreshToken,
		acct.TokenExpiry,
		acct.Scopes,
		acct.Status,
	).Scan(&acct.ID, &acct.CreatedAt, &acct.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to upsert social account",
			zap.Error(err),
			zap.String("user_id", acct.UserID.String()),
			zap.String("platform", acct.Platform),
		)
		return fmt.Errorf("upsert social account: %w", err)
	}

	r.logger.Info("social account upserted",
		zap.String("account_id", acct.ID.String()),
		zap.String("user_id", acct.UserID.String()),
		zap.String("platform", acct.Platform),
		zap.String("platform_user_id", acct.PlatformUserID),
	)

	return nil
}

// GetAccount retrieves a social account by ID
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*SocialAccount, error) {
	query := `
		SELECT
			id, user_id, org_id, platform, platform_user_id, display_name,
			access_token, refresh_token, token_expiry, scopes, status,
			last_sync_at, created_at, updated_at
		FROM social_accounts
		WHERE id = $1
	`

	var acct SocialAccount
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&acct.ID,
		&acct.UserID,
		&acct.OrgID,
		&acct.Platform,
		&acct.PlatformUserID,
		&acct.DisplayName,
		&acct.AccessToken,
		&acct.RefreshToken,
		&acct.TokenExpiry,
		&acct.Scopes,
		&acct.Status,
		&acct.LastSyncAt,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("social account %s: %w", id, ErrNotFound)
	}

	if err != nil {
		r.logger.Error("failed to get social account",
			zap.Error(err),
			zap.String("account_id", id.String()),
		)
		return nil, fmt.Errorf("query social account: %w", err)
	}

	return &acct, nil
}

// ListAccountsByUser retrieves all social accounts linked by a user
func (r *Repository) ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*SocialAccount, error) {
	query := `
		SELECT
			id, user_id, org_id, platform, platform_user_id, display_name,
			access_token, refresh_token, token_expiry, scopes, status,
			last_sync_at, created_at, updated_at
		FROM social_accounts
		WHERE user_id = $1
		ORDER BY platform, created_at
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query social accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*SocialAccount
	for rows.Next() {
		var acct SocialAccount
		err := rows.Scan(
			&acct.ID,
			&acct.UserID,
			&acct.OrgID,
			&acct.Platform,
			&acct.PlatformUserID,
			&acct.DisplayName,
			&acct.AccessToken,
			&acct.RefreshToken,
			&acct.TokenExpiry,
			&acct.Scopes,
			&acct.Status,
			&acct.LastSyncAt,
			&acct.CreatedAt,
			&acct.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan social account: %w", err)
		}
		accounts = append(accounts, &acct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return accounts, nil
}

// UpdateAccountTokens stores a fresh token pair after a refresh and marks
// the account active again.
func (r *Repository) UpdateAccountTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiry *time.Time) error {
	query := `
		UPDATE social_accounts
		SET access_token = $1, refresh_token = $2, token_expiry = $3,
		    status = $4, last_sync_at = NOW(), updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.Pool().Exec(ctx, query, accessToken, refreshToken, expiry, AccountActive, id)
	if err != nil {
		r.logger.Error("failed to update account tokens",
			zap.Error(err),
			zap.String("account_id", id.String()),
		)
		return fmt.Errorf("update account tokens: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("social account %s: %w", id, ErrNotFound)
	}

	return nil
}

// UpdateAccountStatus transitions an account to the given status
func (r *Repository) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE social_accounts
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Pool().Exec(ctx, query, status, id)
	if err != nil {
		r.logger.Error("failed to update account status",
			zap.Error(err),
			zap.String("account_id", id.String()),
			zap.String("status", status),
		)
		return fmt.Errorf("update account status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("social account %s: %w", id, ErrNotFound)
	}

	r.logger.Info("account status updated",
		zap.String("account_id", id.String()),
		zap.String("status", status),
	)

	return nil
}
