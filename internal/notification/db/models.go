// Package db は通知レコードストアに対するクエリ実行オブジェクトを提供する。
package db

import (
	"database/sql"
	"time"
)

// Notification は通知レコードのDB行を表す。
type Notification struct {
	// ID は通知の一意識別子。
	ID int64
	// Type は通知のカテゴリ（例: TASK_ASSIGNED）。
	Type string
	// Content は通知の本文。
	Content string
	// IsRead は既読状態（0=未読, 1=既読）。
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
