package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
)

const memberColumns = `group_id, user_id, role, nickname, joined_at, left_at, last_read_at, active, muted`

// scanMember 扫描成员行
func scanMember(row pgx.Row) (*model.GroupMember, error) {
	var member model.GroupMember
	err := row.Scan(
		&member.GroupId,
		&member.UserId,
		&member.Role,
		&member.Nickname,
		&member.JoinedAt,
		&member.LeftAt,
		&member.LastReadAt,
		&member.Active,
		&member.Muted,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &member, nil
}

// InsertMember 添加成员
func (t *tx) InsertMember(ctx context.Context, member *model.GroupMember) error {
	query := `
		INSERT INTO group_members (group_id, user_id, role, nickname, joined_at, left_at, last_read_at, active, muted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := t.tx.Exec(ctx, query,
		member.GroupId,
		member.UserId,
		member.Role,
		member.Nickname,
		member.JoinedAt,
		member.LeftAt,
		member.LastReadAt,
		member.Active,
		member.Muted,
	)
	return mapError(err)
}

// GetMember 获取成员（含已退出）
func (t *tx) GetMember(ctx context.Context, groupId int64, userId string) (*model.GroupMember, error) {
	query := `SELECT ` + memberColumns + ` FROM group_members WHERE group_id = $1 AND user_id = $2`
	return scanMember(t.tx.QueryRow(ctx, query, groupId, userId))
}

// UpdateMember 更新成员行
func (t *tx) UpdateMember(ctx context.Context, member *model.GroupMember) error {
	query := `
		UPDATE group_members
		SET role = $3, nickname = $4, joined_at = $5, left_at = $6, last_read_at = $7, active = $8, muted = $9
		WHERE group_id = $1 AND user_id = $2
	`
	result, err := t.tx.Exec(ctx, query,
		member.GroupId,
		member.UserId,
		member.Role,
		member.Nickname,
		member.JoinedAt,
		member.LeftAt,
		member.LastReadAt,
		member.Active,
		member.Muted,
	)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListActiveMembers 获取在群成员，群主、管理员在前
func (t *tx) ListActiveMembers(ctx context.Context, groupId int64) ([]model.GroupMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM group_members
		WHERE group_id = $1 AND active
		ORDER BY CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, joined_at, user_id
	`
	rows, err := t.tx.Query(ctx, query, groupId)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var members []model.GroupMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *member)
	}
	return members, mapError(rows.Err())
}

// CountActiveMembers 获取在群成员数量
func (t *tx) CountActiveMembers(ctx context.Context, groupId int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND active`, groupId).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}
