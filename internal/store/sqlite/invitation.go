package sqlite

import (
	"context"
	"database/sql"
	"time"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
)

const invitationColumns = `id, group_id, invited_by, invited_user, status, created_at, responded_at, expires_at`

func scanInvitationInto(row rowScanner, inv *model.GroupInvitation, extra ...any) error {
	var (
		createdAt              int64
		respondedAt, expiresAt sql.NullInt64
	)
	dest := []any{
		&inv.Id,
		&inv.GroupId,
		&inv.InvitedBy,
		&inv.InvitedUser,
		&inv.Status,
		&createdAt,
		&respondedAt,
		&expiresAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return mapError(err)
	}
	inv.CreatedAt = fromMillis(createdAt)
	inv.RespondedAt = fromNullMillis(respondedAt)
	inv.ExpiresAt = fromNullMillis(expiresAt)
	return nil
}

func scanInvitation(row rowScanner) (*model.GroupInvitation, error) {
	var inv model.GroupInvitation
	if err := scanInvitationInto(row, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// InsertInvitation 创建邀请，重复的 pending 邀请由部分唯一索引拒绝
func (t *tx) InsertInvitation(ctx context.Context, invitation *model.GroupInvitation) error {
	query := `
		INSERT INTO group_invitations (id, group_id, invited_by, invited_user, status, created_at, responded_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := t.tx.ExecContext(ctx, query,
		invitation.Id,
		invitation.GroupId,
		invitation.InvitedBy,
		invitation.InvitedUser,
		string(invitation.Status),
		toMillis(invitation.CreatedAt),
		toNullMillis(invitation.RespondedAt),
		toNullMillis(invitation.ExpiresAt),
	)
	return mapError(err)
}

// GetInvitation 根据 ID 获取邀请
func (t *tx) GetInvitation(ctx context.Context, id int64) (*model.GroupInvitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM group_invitations WHERE id = ?`
	return scanInvitation(t.tx.QueryRowContext(ctx, query, id))
}

// GetPendingInvitation 获取某群对某用户的待处理邀请
func (t *tx) GetPendingInvitation(ctx context.Context, groupId int64, invitedUser string) (*model.GroupInvitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM group_invitations
		WHERE group_id = ? AND invited_user = ? AND status = 'pending'
	`
	return scanInvitation(t.tx.QueryRowContext(ctx, query, groupId, invitedUser))
}

// TransitionInvitation 条件更新邀请状态（pending -> 终态）
func (t *tx) TransitionInvitation(ctx context.Context, id int64, to model.InvitationStatus, at time.Time) error {
	query := `
		UPDATE group_invitations
		SET status = ?1, responded_at = CASE WHEN ?1 = 'expired' THEN responded_at ELSE ?2 END
		WHERE id = ?3 AND status = 'pending'
	`
	result, err := t.tx.ExecContext(ctx, query, string(to), toMillis(at), id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrStateChanged
	}
	return nil
}

// ExpireInvitations 批量过期，只处理仍为 pending 的邀请
func (t *tx) ExpireInvitations(ctx context.Context, filter store.ExpireFilter) (int64, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	ignoreDeadline := 0
	if filter.IgnoreDeadline {
		ignoreDeadline = 1
	}
	query := `
		UPDATE group_invitations
		SET status = 'expired'
		WHERE id IN (
			SELECT id FROM group_invitations
			WHERE status = 'pending'
			  AND (?5 = 1 OR (expires_at IS NOT NULL AND expires_at < ?1))
			  AND (?2 = 0 OR group_id = ?2)
			  AND (?3 = '' OR invited_user = ?3)
			ORDER BY expires_at
			LIMIT ?4
		)
	`
	result, err := t.tx.ExecContext(ctx, query, toMillis(filter.Now), filter.GroupId, filter.InvitedUser, limit, ignoreDeadline)
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}

// ListPendingInvitations 获取用户待处理邀请，最新的在前
func (t *tx) ListPendingInvitations(ctx context.Context, invitedUser string) ([]model.InvitationView, error) {
	query := `
		SELECT i.id, i.group_id, i.invited_by, i.invited_user, i.status, i.created_at, i.responded_at, i.expires_at,
		       COALESCE(NULLIF(g.name, ''), 'Unnamed Group')
		FROM group_invitations i
		JOIN groups g ON g.id = i.group_id
		WHERE i.invited_user = ? AND i.status = 'pending'
		ORDER BY i.created_at DESC, i.id DESC
	`
	rows, err := t.tx.QueryContext(ctx, query, invitedUser)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var invitations []model.InvitationView
	for rows.Next() {
		var v model.InvitationView
		if err := scanInvitationInto(rows, &v.GroupInvitation, &v.GroupName); err != nil {
			return nil, err
		}
		invitations = append(invitations, v)
	}
	return invitations, mapError(rows.Err())
}
