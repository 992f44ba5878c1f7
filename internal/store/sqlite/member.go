package sqlite

import (
	"context"
	"database/sql"

	"sudooom.im.group/internal/model"
)

const memberColumns = `group_id, user_id, role, nickname, joined_at, left_at, last_read_at, active, muted`

func scanMember(row rowScanner) (*model.GroupMember, error) {
	var (
		member             model.GroupMember
		nickname           sql.NullString
		joinedAt           int64
		leftAt, lastReadAt sql.NullInt64
	)
	err := row.Scan(
		&member.GroupId,
		&member.UserId,
		&member.Role,
		&nickname,
		&joinedAt,
		&leftAt,
		&lastReadAt,
		&member.Active,
		&member.Muted,
	)
	if err != nil {
		return nil, mapError(err)
	}
	member.Nickname = fromNullString(nickname)
	member.JoinedAt = fromMillis(joinedAt)
	member.LeftAt = fromNullMillis(leftAt)
	member.LastReadAt = fromNullMillis(lastReadAt)
	return &member, nil
}

// InsertMember 添加成员
func (t *tx) InsertMember(ctx context.Context, member *model.GroupMember) error {
	query := `
		INSERT INTO group_members (group_id, user_id, role, nickname, joined_at, left_at, last_read_at, active, muted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := t.tx.ExecContext(ctx, query,
		member.GroupId,
		member.UserId,
		string(member.Role),
		toNullString(member.Nickname),
		toMillis(member.JoinedAt),
		toNullMillis(member.LeftAt),
		toNullMillis(member.LastReadAt),
		boolToInt(member.Active),
		boolToInt(member.Muted),
	)
	return mapError(err)
}

// GetMember 获取成员（含已退出）
func (t *tx) GetMember(ctx context.Context, groupId int64, userId string) (*model.GroupMember, error) {
	query := `SELECT ` + memberColumns + ` FROM group_members WHERE group_id = ? AND user_id = ?`
	return scanMember(t.tx.QueryRowContext(ctx, query, groupId, userId))
}

// UpdateMember 更新成员行
func (t *tx) UpdateMember(ctx context.Context, member *model.GroupMember) error {
	query := `
		UPDATE group_members
		SET role = ?, nickname = ?, joined_at = ?, left_at = ?, last_read_at = ?, active = ?, muted = ?
		WHERE group_id = ? AND user_id = ?
	`
	result, err := t.tx.ExecContext(ctx, query,
		string(member.Role),
		toNullString(member.Nickname),
		toMillis(member.JoinedAt),
		toNullMillis(member.LeftAt),
		toNullMillis(member.LastReadAt),
		boolToInt(member.Active),
		boolToInt(member.Muted),
		member.GroupId,
		member.UserId,
	)
	return affectedOrNotFound(result, err)
}

// ListActiveMembers 获取在群成员，群主、管理员在前
func (t *tx) ListActiveMembers(ctx context.Context, groupId int64) ([]model.GroupMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM group_members
		WHERE group_id = ? AND active = 1
		ORDER BY CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, joined_at, user_id
	`
	rows, err := t.tx.QueryContext(ctx, query, groupId)
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
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = ? AND active = 1`, groupId).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}
