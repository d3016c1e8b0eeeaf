package notification

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS notifications (
    -- 通知の一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- 通知のカテゴリ（例: TASK_ASSIGNED）
    type TEXT NOT NULL,
    -- 通知の本文
    content TEXT NOT NULL,
    -- 通知の既読状態
    is_read INTEGER NOT NULL DEFAULT 0,
    -- 通知の作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 任意の関連エンティティへの参照
    related_id INTEGER,
    -- 通知先のユーザーID
    recipient_id TEXT NOT NULL,
    -- 文脈となるタスクのID
    task_id INTEGER,
    -- 文脈となるプロジェクトのID
    project_id INTEGER
);

-- ユーザーごとの一覧取得を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_recipient
    ON notifications(recipient_id, created_at DESC);

-- 未読通知の検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_unread
    ON notifications(recipient_id, is_read) WHERE is_read = 0;

-- 既読通知の定期削除を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_read_created
    ON notifications(created_at) WHERE is_read = 1;
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
