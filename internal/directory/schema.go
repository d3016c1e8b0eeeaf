package directory

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。参照系で使用する業務エンティティのテーブルのみを持つ。
const schema = `
CREATE TABLE IF NOT EXISTS users (
    -- ユーザーの一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 表示名
    name TEXT NOT NULL,
    -- メールアドレス
    email TEXT NOT NULL UNIQUE,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS projects (
    -- プロジェクトの一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- プロジェクト名
    name TEXT NOT NULL,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tasks (
    -- タスクの一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- 所属するプロジェクトのID
    project_id INTEGER NOT NULL REFERENCES projects(id),
    -- タスク名
    name TEXT NOT NULL,
    -- タスクの説明
    description TEXT NOT NULL DEFAULT '',
    -- タスクのステータス（open / in_progress / done）
    status TEXT NOT NULL DEFAULT 'open',
    -- 期限日時（未設定の場合はNULL）
    due_date DATETIME,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS task_assignees (
    -- 担当対象のタスクID
    task_id INTEGER NOT NULL REFERENCES tasks(id),
    -- 担当者のユーザーID
    user_id TEXT NOT NULL REFERENCES users(id),
    PRIMARY KEY (task_id, user_id)
);

-- 期限接近タスクの走査を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_tasks_due_date
    ON tasks(due_date) WHERE due_date IS NOT NULL;
`

// InitSchema はSQLiteデータベースに参照系スキーマを適用する。
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("参照系スキーマの適用に失敗: %w", err)
	}
	return nil
}
