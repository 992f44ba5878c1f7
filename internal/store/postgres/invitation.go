package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
)

const invitationColumns = `id, group_id, invited_by, invited_user, status, created_at, responded_at, expires_at`

// scanInvitation 扫描邀请行
func scanInvitation(row pgx.Row) (*model.GroupInvitation, error) {
	var inv model.GroupInvitation
	err := row.Scan(
		&inv.Id,
		&inv.GroupId,
		&inv.InvitedBy,
		&inv.InvitedUser,
		&inv.Status,
		&inv.CreatedAt,
		&inv.RespondedAt,
		&inv.ExpiresAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &inv, nil
}

// InsertInvitation 创建邀请，重复的 pending 邀请由部分唯一索引拒绝
func (t *tx) InsertInvitation(ctx context.Context, invitation *model.GroupInvitation) error {
	query := `
		INSERT INTO group_invitations (id, group_id, invited_by, invited_user, status, created_at, responded_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := t.tx.Exec(ctx, query,
		invitation.Id,
		invitation.GroupId,
		invitation.InvitedBy,
		invitation.InvitedUser,
		invitation.Status,
		invitation.CreatedAt,
		invitation.RespondedAt,
		invitation.ExpiresAt,
	)
	return mapError(err)
}

// GetInvitation 根据 ID 获取邀请，状态变更依赖 TransitionInvitation 的条件更新
func (t *tx) GetInvitation(ctx context.Context, id int64) (*model.GroupInvitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM group_invitations WHERE id = $1`
	return scanInvitation(t.tx.QueryRow(ctx, query, id))
}

// GetPendingInvitation 获取某群对某用户的待处理邀请
func (t *tx) GetPendingInvitation(ctx context.Context, groupId int64, invitedUser string) (*model.GroupInvitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM group_invitations
		WHERE group_id = $1 AND invited_user = $2 AND status = $3
	`
	return scanInvitation(t.tx.QueryRow(ctx, query, groupId, invitedUser, model.InvitationPending))
}

// TransitionInvitation 条件更新邀请状态（pending -> 终态）
func (t *tx) TransitionInvitation(ctx context.Context, id int64, to model.InvitationStatus, at time.Time) error {
	query := `
		UPDATE group_invitations
		SET status = $2, responded_at = CASE WHEN $2::text = 'expired' THEN responded_at ELSE $3 END
		WHERE id = $1 AND status = 'pending'
	`
	result, err := t.tx.Exec(ctx, query, id, to, at)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrStateChanged
	}
	return nil
}

// ExpireInvitations 批量过期，只处理仍为 pending 的邀请
func (t *tx) ExpireInvitations(ctx context.Context, filter store.ExpireFilter) (int64, error) {
	query := `
		UPDATE group_invitations
		SET status = 'expired'
		WHERE id IN (
			SELECT id FROM group_invitations
			WHERE status = 'pending'
			  AND ($5::bool OR (expires_at IS NOT NULL AND expires_at < $1))
			  AND ($2::bigint = 0 OR group_id = $2)
			  AND ($3::text = '' OR invited_user = $3)
			ORDER BY expires_at
			LIMIT NULLIF($4::bigint, 0)
			FOR UPDATE SKIP LOCKED
		)
	`
	result, err := t.tx.Exec(ctx, query, filter.Now, filter.GroupId, filter.InvitedUser, int64(filter.Limit), filter.IgnoreDeadline)
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected(), nil
}

// ListPendingInvitations 获取用户待处理邀请，最新的在前
func (t *tx) ListPendingInvitations(ctx context.Context, invitedUser string) ([]model.InvitationView, error) {
	query := `
		SELECT i.id, i.group_id, i.invited_by, i.invited_user, i.status, i.created_at, i.responded_at, i.expires_at,
		       COALESCE(NULLIF(g.name, ''), 'Unnamed Group')
		FROM group_invitations i
		JOIN groups g ON g.id = i.group_id
		WHERE i.invited_user = $1 AND i.status = $2
		ORDER BY i.created_at DESC, i.id DESC
	`
	rows, err := t.tx.Query(ctx, query, invitedUser, model.InvitationPending)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var invitations []model.InvitationView
	for rows.Next() {
		var v model.InvitationView
		if err := rows.Scan(
			&v.Id,
			&v.GroupId,
			&v.InvitedBy,
			&v.InvitedUser,
			&v.Status,
			&v.CreatedAt,
			&v.RespondedAt,
			&v.ExpiresAt,
			&v.GroupName,
		); err != nil {
			return nil, mapError(err)
		}
		invitations = append(invitations, v)
	}
	return invitations, mapError(rows.Err())
}
