package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTX はクエリ実行に必要なデータベース操作のインターフェース。
// *sql.DB と *sql.Tx の両方を受け付ける。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries は参照系ストアに対するクエリ実行オブジェクト。
type Queries struct {
	db DBTX
}

// New は新しいクエリ実行オブジェクトを生成する。
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// timeLayout はSQLiteのdatetime('now')と同じ書式。
// 文字列比較で時刻順が保たれるよう、明示的な時刻パラメータは必ずこの書式でバインドする。
const timeLayout = "2006-01-02 15:04:05"

// CreateUserParams はCreateUserの入力パラメータ。
type CreateUserParams struct {
	// ID はユーザーの一意識別子（UUID）。空の場合は自動採番される。
	ID string
	// Name は表示名。
	Name string
	// Email はメールアドレス。
	Email string
}

// CreateUser はユーザーを登録し、登録に使われたIDを返す。
func (q *Queries) CreateUser(ctx context.Context, params CreateUserParams) (string, error) {
	id := params.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email) VALUES (?, ?, ?)`,
		id, params.Name, params.Email,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetUserByID は指定されたIDのユーザーを取得する。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = ?`, id)

	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	return u, err
}

// CreateProject はプロジェクトを登録し、採番されたIDを返す。
func (q *Queries) CreateProject(ctx context.Context, name string) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO projects (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetProjectByID は指定されたIDのプロジェクトを取得する。
func (q *Queries) GetProjectByID(ctx context.Context, id int64) (Project, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = ?`, id)

	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.CreatedAt)
	return p, err
}

// CreateTaskParams はCreateTaskの入力パラメータ。
type CreateTaskParams struct {
	// ProjectID は所属するプロジェクトのID。
	ProjectID int64
	// Name はタスク名。
	Name string
	// Description はタスクの説明。
	Description string
	// Status はタスクのステータス。空の場合は "open"。
	Status string
	// DueDate は期限日時。nilの場合は期限なし。
	DueDate *time.Time
}

// CreateTask はタスクを登録し、採番されたIDを返す。
func (q *Queries) CreateTask(ctx context.Context, params CreateTaskParams) (int64, error) {
	status := params.Status
	if status == "" {
		status = "open"
	}

	var dueDate any
	if params.DueDate != nil {
		dueDate = params.DueDate.UTC().Format(timeLayout)
	}

	result, err := q.db.ExecContext(ctx,
		`INSERT INTO tasks (project_id, name, description, status, due_date) VALUES (?, ?, ?, ?, ?)`,
		params.ProjectID, params.Name, params.Description, status, dueDate,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetTaskByID は指定されたIDのタスクを取得する。
func (q *Queries) GetTaskByID(ctx context.Context, id int64) (Task, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, description, status, due_date, created_at
		 FROM tasks WHERE id = ?`, id)

	var t Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.Status, &t.DueDate, &t.CreatedAt)
	return t, err
}

// UpdateTaskStatus はタスクのステータスを更新する。
func (q *Queries) UpdateTaskStatus(ctx context.Context, id int64, status string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET status = ? WHERE id = ?`, status, id)
	return err
}

// AssignUserToTask はタスクに担当者を追加する。既に担当している場合は何もしない。
func (q *Queries) AssignUserToTask(ctx context.Context, taskID int64, userID string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_assignees (task_id, user_id) VALUES (?, ?)`,
		taskID, userID,
	)
	return err
}

// ListTaskAssignees は指定されたタスクの担当者一覧を返す。
func (q *Queries) ListTaskAssignees(ctx context.Context, taskID int64) ([]User, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.email, u.created_at
		 FROM task_assignees ta
		 JOIN users u ON u.id = ta.user_id
		 WHERE ta.task_id = ?
		 ORDER BY u.name, u.id`, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListTasksDueBefore は期限が指定日時以前の未完了タスクの一覧を返す。
// 期限超過済みのタスクも含む。
func (q *Queries) ListTasksDueBefore(ctx context.Context, cutoff time.Time) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, project_id, name, description, status, due_date, created_at
		 FROM tasks
		 WHERE due_date IS NOT NULL AND due_date <= ? AND status != 'done'
		 ORDER BY due_date, id`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.Status, &t.DueDate, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
