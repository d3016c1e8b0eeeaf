package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	directorydb "github.com/nao1215/taskdash/internal/directory/db"
	notificationdb "github.com/nao1215/taskdash/internal/notification/db"
)

// ErrNotFound は参照先のエンティティまたは通知レコードが存在しないことを表す。
var ErrNotFound = errors.New("対象が見つかりません")

// Publisher は新規通知をライブ更新チャンネルへ配信するインターフェース。
// 配信はファイアアンドフォーゲットであり、結果は呼び出し元に返らない。
type Publisher interface {
	Publish(topic string, payload any)
}

// Service は通知レコードのライフサイクルを管理するサービス。
// ドメインサービスが通知を永続化する際の同期的な入口となる。
type Service struct {
	// queries は通知レコードストアへのクエリ実行オブジェクト。
	queries *notificationdb.Queries
	// directory は参照先エンティティの実在確認に使用する参照系ストア。
	directory *directorydb.Queries
	// hub は新規通知のライブ配信先。nilの場合は配信しない。
	hub Publisher
}

// NewService は新しい通知サービスを生成する。
func NewService(queries *notificationdb.Queries, directory *directorydb.Queries, hub Publisher) *Service {
	return &Service{
		queries:   queries,
		directory: directory,
		hub:       hub,
	}
}

// UserSummary はレスポンスに含めるユーザーの要約表現。
type UserSummary struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Name は表示名。
	Name string `json:"name"`
}

// TaskSummary はレスポンスに含めるタスクの要約表現。
type TaskSummary struct {
	// ID はタスクの一意識別子。
	ID int64 `json:"id"`
	// Name はタスク名。
	Name string `json:"name"`
}

// ProjectSummary はレスポンスに含めるプロジェクトの要約表現。
type ProjectSummary struct {
	// ID はプロジェクトの一意識別子。
	ID int64 `json:"id"`
	// Name はプロジェクト名。
	Name string `json:"name"`
}

// Response は通知のレスポンス表現。
// ライブ更新チャンネルへのペイロードとしてもそのまま使用される。
type Response struct {
	// ID は通知の一意識別子。
	ID int64 `json:"id"`
	// Type は通知のカテゴリ。
	Type string `json:"type"`
	// Content は通知の本文。
	Content string `json:"content"`
	// IsRead は既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
	// RelatedID は任意の関連エンティティへの参照。
	RelatedID *int64 `json:"related_id,omitempty"`
	// Recipient は通知先ユーザーの要約。
	Recipient UserSummary `json:"recipient"`
	// Task は文脈となるタスクの要約。
	Task *TaskSummary `json:"task,omitempty"`
	// Project は文脈となるプロジェクトの要約。
	Project *ProjectSummary `json:"project,omitempty"`
}

// toResponse はDB行をレスポンス表現に変換する。
// 要約の解決は読み取り時点のベストエフォートで行い、参照先が既に
// 削除されている場合はIDのみの要約を返す。
func (s *Service) toResponse(ctx context.Context, n notificationdb.Notification) *Response {
	resp := &Response{
		ID:        n.ID,
		Type:      n.Type,
		Content:   n.Content,
		IsRead:    n.IsRead != 0,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		Recipient: UserSummary{ID: n.RecipientID},
	}
	if n.RelatedID.Valid {
		relatedID := n.RelatedID.Int64
		resp.RelatedID = &relatedID
	}

	if user, err := s.directory.GetUserByID(ctx, n.RecipientID); err == nil {
		resp.Recipient.Name = user.Name
	}
	if n.TaskID.Valid {
		resp.Task = &TaskSummary{ID: n.TaskID.Int64}
		if task, err := s.directory.GetTaskByID(ctx, n.TaskID.Int64); err == nil {
			resp.Task.Name = task.Name
		}
	}
	if n.ProjectID.Valid {
		resp.Project = &ProjectSummary{ID: n.ProjectID.Int64}
		if project, err := s.directory.GetProjectByID(ctx, n.ProjectID.Int64); err == nil {
			resp.Project.Name = project.Name
		}
	}
	return resp
}

// InsertParams はInsertの入力パラメータ。
type InsertParams struct {
	// Type は通知のカテゴリ。必須。
	Type string
	// Content は通知の本文。必須。
	Content string
	// RecipientID は通知先のユーザーID。必須。
	RecipientID string
	// TaskID は文脈となるタスクのID。nilの場合は未設定。
	TaskID *int64
	// ProjectID は文脈となるプロジェクトのID。nilの場合は未設定。
	ProjectID *int64
	// RelatedID は任意の関連エンティティへの参照。実在確認は行わない。
	RelatedID *int64
}

// Insert は通知レコードを未読状態で永続化し、ライブ更新チャンネルへ配信する。
// 受信者・タスク・プロジェクトの参照先が存在しない場合はErrNotFoundを返す。
func (s *Service) Insert(ctx context.Context, params InsertParams) (*Response, error) {
	if _, err := s.directory.GetUserByID(ctx, params.RecipientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("受信者 %s: %w", params.RecipientID, ErrNotFound)
		}
		return nil, fmt.Errorf("受信者の確認に失敗: %w", err)
	}
	if params.TaskID != nil {
		if _, err := s.directory.GetTaskByID(ctx, *params.TaskID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("タスク %d: %w", *params.TaskID, ErrNotFound)
			}
			return nil, fmt.Errorf("タスクの確認に失敗: %w", err)
		}
	}
	if params.ProjectID != nil {
		if _, err := s.directory.GetProjectByID(ctx, *params.ProjectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("プロジェクト %d: %w", *params.ProjectID, ErrNotFound)
			}
			return nil, fmt.Errorf("プロジェクトの確認に失敗: %w", err)
		}
	}

	id, err := s.queries.CreateNotification(ctx, notificationdb.CreateNotificationParams{
		Type:        params.Type,
		Content:     params.Content,
		RecipientID: params.RecipientID,
		RelatedID:   toNullInt64(params.RelatedID),
		TaskID:      toNullInt64(params.TaskID),
		ProjectID:   toNullInt64(params.ProjectID),
	})
	if err != nil {
		return nil, fmt.Errorf("通知の作成に失敗: %w", err)
	}

	created, err := s.queries.GetNotificationByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("作成済み通知の取得に失敗: %w", err)
	}

	resp := s.toResponse(ctx, created)
	if s.hub != nil {
		s.hub.Publish(TopicForUser(params.RecipientID), resp)
	}
	return resp, nil
}

// TopicForUser は指定されたユーザー宛のライブ配信トピック名を返す。
func TopicForUser(userID string) string {
	return "user:" + userID
}

// Get は指定されたIDの通知を取得する。存在しない場合はErrNotFoundを返す。
func (s *Service) Get(ctx context.Context, id int64) (*Response, error) {
	n, err := s.queries.GetNotificationByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("通知 %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return s.toResponse(ctx, n), nil
}

// UpdateParams はUpdateの入力パラメータ。nilのフィールドは変更されない。
type UpdateParams struct {
	// Type は通知のカテゴリ。
	Type *string
	// Content は通知の本文。
	Content *string
	// IsRead は既読状態。
	IsRead *bool
	// CreatedAt は作成日時。
	CreatedAt *time.Time
	// RelatedID は任意の関連エンティティへの参照。
	RelatedID *int64
	// RecipientID は通知先のユーザーID。変更時は実在確認を行う。
	RecipientID *string
	// TaskID は文脈となるタスクのID。変更時は実在確認を行う。
	TaskID *int64
	// ProjectID は文脈となるプロジェクトのID。変更時は実在確認を行う。
	ProjectID *int64
}

// Update は通知レコードを部分更新する。指定されたフィールドのみを上書きし、
// 指定のないフィールドは既存の値を保持する。対象の通知が存在しない場合は
// ErrNotFoundを返す（Deleteとは異なり、不在はエラーとして扱う）。
func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) (*Response, error) {
	n, err := s.queries.GetNotificationByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("通知 %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}

	if params.Type != nil {
		n.Type = *params.Type
	}
	if params.Content != nil {
		n.Content = *params.Content
	}
	if params.IsRead != nil {
		n.IsRead = 0
		if *params.IsRead {
			n.IsRead = 1
		}
	}
	if params.CreatedAt != nil {
		n.CreatedAt = *params.CreatedAt
	}
	if params.RelatedID != nil {
		n.RelatedID = sql.NullInt64{Int64: *params.RelatedID, Valid: true}
	}
	if params.RecipientID != nil {
		if _, err := s.directory.GetUserByID(ctx, *params.RecipientID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("受信者 %s: %w", *params.RecipientID, ErrNotFound)
			}
			return nil, fmt.Errorf("受信者の確認に失敗: %w", err)
		}
		n.RecipientID = *params.RecipientID
	}
	if params.TaskID != nil {
		if _, err := s.directory.GetTaskByID(ctx, *params.TaskID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("タスク %d: %w", *params.TaskID, ErrNotFound)
			}
			return nil, fmt.Errorf("タスクの確認に失敗: %w", err)
		}
		n.TaskID = sql.NullInt64{Int64: *params.TaskID, Valid: true}
	}
	if params.ProjectID != nil {
		if _, err := s.directory.GetProjectByID(ctx, *params.ProjectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("プロジェクト %d: %w", *params.ProjectID, ErrNotFound)
			}
			return nil, fmt.Errorf("プロジェクトの確認に失敗: %w", err)
		}
		n.ProjectID = sql.NullInt64{Int64: *params.ProjectID, Valid: true}
	}

	if err := s.queries.UpdateNotification(ctx, notificationdb.UpdateNotificationParams{
		ID:          n.ID,
		Type:        n.Type,
		Content:     n.Content,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
		RelatedID:   n.RelatedID,
		RecipientID: n.RecipientID,
		TaskID:      n.TaskID,
		ProjectID:   n.ProjectID,
	}); err != nil {
		return nil, fmt.Errorf("通知の更新に失敗: %w", err)
	}

	updated, err := s.queries.GetNotificationByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("更新済み通知の取得に失敗: %w", err)
	}
	return s.toResponse(ctx, updated), nil
}

// MarkAsRead は通知を既読にする。既に既読の場合も成功として扱う（冪等）。
// 対象の通知が存在しない場合はErrNotFoundを返す。
func (s *Service) MarkAsRead(ctx context.Context, id int64) error {
	if _, err := s.queries.GetNotificationByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("通知 %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("通知の取得に失敗: %w", err)
	}
	if err := s.queries.MarkAsRead(ctx, id); err != nil {
		return fmt.Errorf("既読処理に失敗: %w", err)
	}
	return nil
}

// MarkManyAsRead は指定されたユーザー宛の複数の通知をまとめて既読にする。
// 存在しないIDや他ユーザー宛のIDは読み飛ばされる（冪等）。
func (s *Service) MarkManyAsRead(ctx context.Context, recipientID string, ids []int64) error {
	if err := s.queries.MarkManyAsRead(ctx, recipientID, ids); err != nil {
		return fmt.Errorf("一括既読処理に失敗: %w", err)
	}
	return nil
}

// pageSize は一覧取得の1ページあたりの件数。
const pageSize = 20

// ListByRecipient は指定されたユーザー宛の通知を新しい順に1ページ分返す。
// pageは1始まりで、1未満の値は1ページ目として扱う。
func (s *Service) ListByRecipient(ctx context.Context, recipientID string, page int64, unreadOnly bool) ([]*Response, error) {
	if page < 1 {
		page = 1
	}
	notifications, err := s.queries.ListByRecipient(ctx, notificationdb.ListByRecipientParams{
		RecipientID: recipientID,
		Limit:       pageSize,
		Offset:      (page - 1) * pageSize,
		UnreadOnly:  unreadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}

	responses := make([]*Response, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, s.toResponse(ctx, n))
	}
	return responses, nil
}

// Delete は通知レコードを削除する。対象が存在しない場合もエラーとしない（冪等）。
// 不在を許容する点でUpdateの厳格なErrNotFoundとは非対称。
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.queries.DeleteNotification(ctx, id); err != nil {
		return fmt.Errorf("通知の削除に失敗: %w", err)
	}
	return nil
}

// PurgeRead は既読かつ保持期間を超えた通知を削除し、削除件数を返す。
func (s *Service) PurgeRead(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	deleted, err := s.queries.DeleteReadOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("既読通知の削除に失敗: %w", err)
	}
	return deleted, nil
}

// toNullInt64 は*int64をsql.NullInt64に変換する。
func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
