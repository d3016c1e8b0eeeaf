// Package db は参照系ストアに対するクエリ実行オブジェクトを提供する。
package db

import (
	"database/sql"
	"time"
)

// User はユーザーのDB行を表す。
type User struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// Name は表示名。
	Name string
	// Email はメールアドレス。
	Email string
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// Project はプロジェクトのDB行を表す。
type Project struct {
	// ID はプロジェクトの一意識別子。
	ID int64
	// Name はプロジェクト名。
	Name string
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// Task はタスクのDB行を表す。
type Task struct {
	// ID はタスクの一意識別子。
	ID int64
	// ProjectID は所属するプロジェクトのID。
	ProjectID int64
	// Name はタスク名。
	Name string
	// Description はタスクの説明。
	Description string
	// Status はタスクのステータス。
	Status string
	// DueDate は期限日時。未設定の場合は無効値。
	DueDate sql.NullTime
	// CreatedAt は作成日時。
	CreatedAt time.Time
}
