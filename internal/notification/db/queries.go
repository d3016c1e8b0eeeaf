package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// DBTX はクエリ実行に必要なデータベース操作のインターフェース。
// *sql.DB と *sql.Tx の両方を受け付ける。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries は通知レコードストアに対するクエリ実行オブジェクト。
type Queries struct {
	db DBTX
}

// New は新しいクエリ実行オブジェクトを生成する。
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// timeLayout はSQLiteのdatetime('now')と同じ書式。
const timeLayout = "2006-01-02 15:04:05"

// notificationColumns はSELECT句で使用するカラムの並び。
const notificationColumns = `id, type, content, is_read, created_at, related_id, recipient_id, task_id, project_id`

// scanNotification は1行を通知レコードに読み取る。
func scanNotification(row interface{ Scan(dest ...any) error }) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.Type, &n.Content, &n.IsRead, &n.CreatedAt,
		&n.RelatedID, &n.RecipientID, &n.TaskID, &n.ProjectID)
	return n, err
}

// CreateNotificationParams はCreateNotificationの入力パラメータ。
type CreateNotificationParams struct {
	// Type は通知のカテゴリ。
	Type string
	// Content は通知の本文。
	Content string
	// RecipientID は通知先のユーザーID。
	RecipientID string
	// RelatedID は任意の関連エンティティへの参照。
	RelatedID sql.NullInt64
	// TaskID は文脈となるタスクのID。
	TaskID sql.NullInt64
	// ProjectID は文脈となるプロジェクトのID。
	ProjectID sql.NullInt64
}

// CreateNotification は通知レコードを未読状態で登録し、採番されたIDを返す。
// 作成日時はデータベース側で現在時刻が設定される。
func (q *Queries) CreateNotification(ctx context.Context, params CreateNotificationParams) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO notifications (type, content, recipient_id, related_id, task_id, project_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		params.Type, params.Content, params.RecipientID,
		params.RelatedID, params.TaskID, params.ProjectID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetNotificationByID は指定されたIDの通知レコードを取得する。
func (q *Queries) GetNotificationByID(ctx context.Context, id int64) (Notification, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	return scanNotification(row)
}

// ListByRecipientParams は一覧取得の入力パラメータ。
type ListByRecipientParams struct {
	// RecipientID は通知先のユーザーID。
	RecipientID string
	// Limit は取得件数の上限。
	Limit int64
	// Offset は読み飛ばす件数。
	Offset int64
	// UnreadOnly がtrueの場合、未読の通知のみを対象とする。
	UnreadOnly bool
}

// ListByRecipient は指定されたユーザー宛の通知を作成日時の降順（新しい順）で返す。
func (q *Queries) ListByRecipient(ctx context.Context, params ListByRecipientParams) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = ?`
	if params.UnreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := q.db.QueryContext(ctx, query, params.RecipientID, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	notifications := make([]Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkAsRead は指定された通知を既読にする。既に既読の場合も成功として扱う。
func (q *Queries) MarkAsRead(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	return err
}

// MarkManyAsRead は指定されたユーザー宛の複数の通知をまとめて既読にする。
// 存在しないIDや他ユーザー宛のIDは読み飛ばされる。
func (q *Queries) MarkManyAsRead(ctx context.Context, recipientID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, recipientID)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := q.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	return err
}

// UpdateNotificationParams はUpdateNotificationの入力パラメータ。全カラムを上書きする。
type UpdateNotificationParams struct {
	// ID は更新対象の通知ID。
	ID int64
	// Type は通知のカテゴリ。
	Type string
	// Content は通知の本文。
	Content string
	// IsRead は既読状態。
	IsRead int64
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// RelatedID は任意の関連エンティティへの参照。
	RelatedID sql.NullInt64
	// RecipientID は通知先のユーザーID。
	RecipientID string
	// TaskID は文脈となるタスクのID。
	TaskID sql.NullInt64
	// ProjectID は文脈となるプロジェクトのID。
	ProjectID sql.NullInt64
}

// UpdateNotification は通知レコードの全カラムを上書きする。
// 部分更新のマージは呼び出し側（サービス層）で行う。
func (q *Queries) UpdateNotification(ctx context.Context, params UpdateNotificationParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE notifications
		 SET type = ?, content = ?, is_read = ?, created_at = ?,
		     related_id = ?, recipient_id = ?, task_id = ?, project_id = ?
		 WHERE id = ?`,
		params.Type, params.Content, params.IsRead,
		params.CreatedAt.UTC().Format(timeLayout),
		params.RelatedID, params.RecipientID, params.TaskID, params.ProjectID,
		params.ID,
	)
	return err
}

// DeleteNotification は通知レコードを削除し、削除された行数を返す。
func (q *Queries) DeleteNotification(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteReadOlderThan は既読かつ作成日時が指定日時より古い通知を削除し、削除された行数を返す。
func (q *Queries) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read = 1 AND created_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
