package sqlite

import (
	"context"
	"database/sql"
	"time"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
)

// rowScanner *sql.Row 与 *sql.Rows 的公共部分
type rowScanner interface {
	Scan(dest ...any) error
}

const groupColumns = `id, name, avatar, description, kind, created_by, created_at, updated_at, last_message_at, active`

func scanGroupInto(row rowScanner, group *model.Group, extra ...any) error {
	var (
		name, avatar, description sql.NullString
		createdAt                 int64
		updatedAt, lastMessageAt  sql.NullInt64
	)
	dest := []any{
		&group.Id,
		&name,
		&avatar,
		&description,
		&group.Kind,
		&group.CreatedBy,
		&createdAt,
		&updatedAt,
		&lastMessageAt,
		&group.Active,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return mapError(err)
	}
	group.Name = fromNullString(name)
	group.Avatar = fromNullString(avatar)
	group.Description = fromNullString(description)
	group.CreatedAt = fromMillis(createdAt)
	group.UpdatedAt = fromNullMillis(updatedAt)
	group.LastMessageAt = fromNullMillis(lastMessageAt)
	return nil
}

func scanGroup(row rowScanner) (*model.Group, error) {
	var group model.Group
	if err := scanGroupInto(row, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// InsertGroup 创建群组
func (t *tx) InsertGroup(ctx context.Context, group *model.Group) error {
	query := `
		INSERT INTO groups (id, name, avatar, description, kind, created_by, created_at, updated_at, last_message_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := t.tx.ExecContext(ctx, query,
		group.Id,
		toNullString(group.Name),
		toNullString(group.Avatar),
		toNullString(group.Description),
		string(group.Kind),
		group.CreatedBy,
		toMillis(group.CreatedAt),
		toNullMillis(group.UpdatedAt),
		toNullMillis(group.LastMessageAt),
		boolToInt(group.Active),
	)
	return mapError(err)
}

// GetGroup 根据 ID 查找群组
func (t *tx) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = ?`
	return scanGroup(t.tx.QueryRowContext(ctx, query, id))
}

// LockGroup 写事务已独占数据库，直接读取即可
func (t *tx) LockGroup(ctx context.Context, id int64) (*model.Group, error) {
	return t.GetGroup(ctx, id)
}

// UpdateGroup 更新群组资料与状态
func (t *tx) UpdateGroup(ctx context.Context, group *model.Group) error {
	query := `
		UPDATE groups
		SET name = ?, avatar = ?, description = ?, updated_at = ?, last_message_at = ?, active = ?
		WHERE id = ?
	`
	result, err := t.tx.ExecContext(ctx, query,
		toNullString(group.Name),
		toNullString(group.Avatar),
		toNullString(group.Description),
		toNullMillis(group.UpdatedAt),
		toNullMillis(group.LastMessageAt),
		boolToInt(group.Active),
		group.Id,
	)
	return affectedOrNotFound(result, err)
}

// DeleteGroup 删除群组，关联数据级联删除
func (t *tx) DeleteGroup(ctx context.Context, id int64) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	return affectedOrNotFound(result, err)
}

// TouchGroupActivity 更新最后消息时间（只前进不后退）
func (t *tx) TouchGroupActivity(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE groups
		SET last_message_at = MAX(COALESCE(last_message_at, ?1), ?1)
		WHERE id = ?2
	`
	result, err := t.tx.ExecContext(ctx, query, toMillis(at), id)
	return affectedOrNotFound(result, err)
}

// ListUserGroups 获取用户所在的活跃群组
func (t *tx) ListUserGroups(ctx context.Context, userId string) ([]model.GroupSummary, error) {
	query := `
		SELECT g.id, g.name, g.avatar, g.description, g.kind, g.created_by, g.created_at, g.updated_at,
		       g.last_message_at, g.active, m.role,
		       (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id AND c.active = 1)
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ? AND m.active = 1 AND g.active = 1
		ORDER BY g.last_message_at IS NULL, g.last_message_at DESC, g.created_at DESC, g.id DESC
	`
	rows, err := t.tx.QueryContext(ctx, query, userId)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var groups []model.GroupSummary
	for rows.Next() {
		var s model.GroupSummary
		if err := scanGroupInto(rows, &s.Group, &s.Role, &s.MemberCount); err != nil {
			return nil, err
		}
		groups = append(groups, s)
	}
	return groups, mapError(rows.Err())
}

func affectedOrNotFound(result sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
