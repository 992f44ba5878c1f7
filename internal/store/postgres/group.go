package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
)

const groupColumns = `id, name, avatar, description, kind, created_by, created_at, updated_at, last_message_at, active`

// scanGroup 扫描群组行
func scanGroup(row pgx.Row) (*model.Group, error) {
	var group model.Group
	err := row.Scan(
		&group.Id,
		&group.Name,
		&group.Avatar,
		&group.Description,
		&group.Kind,
		&group.CreatedBy,
		&group.CreatedAt,
		&group.UpdatedAt,
		&group.LastMessageAt,
		&group.Active,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &group, nil
}

// InsertGroup 创建群组
func (t *tx) InsertGroup(ctx context.Context, group *model.Group) error {
	query := `
		INSERT INTO groups (id, name, avatar, description, kind, created_by, created_at, updated_at, last_message_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := t.tx.Exec(ctx, query,
		group.Id,
		group.Name,
		group.Avatar,
		group.Description,
		group.Kind,
		group.CreatedBy,
		group.CreatedAt,
		group.UpdatedAt,
		group.LastMessageAt,
		group.Active,
	)
	return mapError(err)
}

// GetGroup 根据 ID 查找群组
func (t *tx) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	return scanGroup(t.tx.QueryRow(ctx, query, id))
}

// LockGroup 查找并锁定群组行
func (t *tx) LockGroup(ctx context.Context, id int64) (*model.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1 FOR UPDATE`
	return scanGroup(t.tx.QueryRow(ctx, query, id))
}

// UpdateGroup 更新群组资料与状态
func (t *tx) UpdateGroup(ctx context.Context, group *model.Group) error {
	query := `
		UPDATE groups
		SET name = $2, avatar = $3, description = $4, updated_at = $5, last_message_at = $6, active = $7
		WHERE id = $1
	`
	result, err := t.tx.Exec(ctx, query,
		group.Id,
		group.Name,
		group.Avatar,
		group.Description,
		group.UpdatedAt,
		group.LastMessageAt,
		group.Active,
	)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteGroup 删除群组，成员、邀请、私聊映射级联删除
func (t *tx) DeleteGroup(ctx context.Context, id int64) error {
	result, err := t.tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// TouchGroupActivity 更新最后消息时间（只前进不后退）
func (t *tx) TouchGroupActivity(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE groups
		SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2)
		WHERE id = $1
	`
	result, err := t.tx.Exec(ctx, query, id, at)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListUserGroups 获取用户所在的活跃群组
func (t *tx) ListUserGroups(ctx context.Context, userId string) ([]model.GroupSummary, error) {
	query := `
		SELECT g.id, g.name, g.avatar, g.description, g.kind, g.created_by, g.created_at, g.updated_at,
		       g.last_message_at, g.active, m.role,
		       (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id AND c.active)
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1 AND m.active AND g.active
		ORDER BY g.last_message_at DESC NULLS LAST, g.created_at DESC, g.id DESC
	`
	rows, err := t.tx.Query(ctx, query, userId)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var groups []model.GroupSummary
	for rows.Next() {
		var s model.GroupSummary
		if err := rows.Scan(
			&s.Id,
			&s.Name,
			&s.Avatar,
			&s.Description,
			&s.Kind,
			&s.CreatedBy,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.LastMessageAt,
			&s.Active,
			&s.Role,
			&s.MemberCount,
		); err != nil {
			return nil, mapError(err)
		}
		groups = append(groups, s)
	}
	return groups, mapError(rows.Err())
}
