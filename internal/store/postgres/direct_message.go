package postgres

import (
	"context"

	"sudooom.im.group/internal/model"
)

// InsertDirectMessage 写入私聊映射，并发创建同一用户对时由主键拒绝
func (t *tx) InsertDirectMessage(ctx context.Context, dm *model.DirectMessageGroup) error {
	query := `
		INSERT INTO direct_message_groups (user1_id, user2_id, group_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := t.tx.Exec(ctx, query, dm.User1Id, dm.User2Id, dm.GroupId, dm.CreatedAt)
	return mapError(err)
}

// GetDirectMessage 根据规范化用户对查找私聊映射
func (t *tx) GetDirectMessage(ctx context.Context, user1Id, user2Id string) (*model.DirectMessageGroup, error) {
	query := `
		SELECT user1_id, user2_id, group_id, created_at
		FROM direct_message_groups
		WHERE user1_id = $1 AND user2_id = $2
	`
	var dm model.DirectMessageGroup
	err := t.tx.QueryRow(ctx, query, user1Id, user2Id).Scan(
		&dm.User1Id,
		&dm.User2Id,
		&dm.GroupId,
		&dm.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &dm, nil
}

// ListUserDirectMessages 获取用户仍在的私聊会话，最近活跃的在前
func (t *tx) ListUserDirectMessages(ctx context.Context, userId string) ([]model.DirectMessageView, error) {
	query := `
		SELECT d.group_id,
		       CASE WHEN d.user1_id = $1 THEN d.user2_id ELSE d.user1_id END,
		       g.last_message_at,
		       m.muted
		FROM direct_message_groups d
		JOIN groups g ON g.id = d.group_id
		JOIN group_members m ON m.group_id = d.group_id AND m.user_id = $1
		WHERE d.user1_id = $1 OR d.user2_id = $1
		ORDER BY g.last_message_at DESC NULLS LAST, d.created_at DESC, d.group_id DESC
	`
	rows, err := t.tx.Query(ctx, query, userId)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var views []model.DirectMessageView
	for rows.Next() {
		var v model.DirectMessageView
		if err := rows.Scan(&v.GroupId, &v.OtherUserId, &v.LastMessageAt, &v.Muted); err != nil {
			return nil, mapError(err)
		}
		views = append(views, v)
	}
	return views, mapError(rows.Err())
}
