package notification

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/taskdash/internal/directory"
	directorydb "github.com/nao1215/taskdash/internal/directory/db"
	notificationdb "github.com/nao1215/taskdash/internal/notification/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingPublisher はライブ配信の呼び出しを記録するテスト用Publisher。
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(topic string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

// published は記録されたトピックのコピーを返す。
func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

// setupTestServer はテスト用の通知サーバーをインメモリSQLiteで構築する。
func setupTestServer(t *testing.T) (*Server, *gin.Engine, *recordingPublisher) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := directory.InitSchema(sqlDB); err != nil {
		t.Fatalf("参照系スキーマの初期化に失敗: %v", err)
	}
	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	publisher := &recordingPublisher{}
	router := gin.New()
	s := &Server{
		router:  router,
		port:    "0",
		service: NewService(notificationdb.New(sqlDB), directorydb.New(sqlDB), publisher),
		db:      sqlDB,
	}

	// JWTミドルウェアの代わりにテスト用のユーザーID設定ミドルウェアを使用する
	api := router.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	{
		notifications := api.Group("/notifications")
		{
			notifications.GET("", s.handleList())
			notifications.GET("/unread", s.handleListUnread())
			notifications.PUT("/read", s.handleMarkManyAsRead())
			notifications.PUT("/:id/read", s.handleMarkAsRead())
			notifications.PATCH("/:id", s.handleUpdate())
			notifications.DELETE("/:id", s.handleDelete())
		}

		internal := api.Group("/internal")
		{
			internal.POST("/notifications", s.handleInsert())
		}
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "taskdash"})
	})

	return s, router, publisher
}

// seedUser はテスト用ユーザーを参照系ストアに作成する。
func seedUser(t *testing.T, s *Server, id, name string) {
	t.Helper()
	_, err := s.service.directory.CreateUser(context.Background(), directorydb.CreateUserParams{
		ID:    id,
		Name:  name,
		Email: id + "@example.com",
	})
	if err != nil {
		t.Fatalf("テスト用ユーザーの作成に失敗: %v", err)
	}
}

// seedTask はテスト用のプロジェクトとタスクを作成し、それぞれのIDを返す。
func seedTask(t *testing.T, s *Server, name string) (taskID, projectID int64) {
	t.Helper()
	projectID, err := s.service.directory.CreateProject(context.Background(), "テストプロジェクト")
	if err != nil {
		t.Fatalf("テスト用プロジェクトの作成に失敗: %v", err)
	}
	taskID, err = s.service.directory.CreateTask(context.Background(), directorydb.CreateTaskParams{
		ProjectID: projectID,
		Name:      name,
	})
	if err != nil {
		t.Fatalf("テスト用タスクの作成に失敗: %v", err)
	}
	return taskID, projectID
}

// createTestNotification はテスト用に通知をDBに直接挿入し、採番されたIDを返す。
func createTestNotification(t *testing.T, s *Server, recipientID, typ, content string) int64 {
	t.Helper()
	id, err := s.service.queries.CreateNotification(
		context.Background(),
		notificationdb.CreateNotificationParams{
			Type:        typ,
			Content:     content,
			RecipientID: recipientID,
		},
	)
	if err != nil {
		t.Fatalf("テスト用通知の作成に失敗: %v", err)
	}
	return id
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// parseJSONArray はレスポンスボディをスライスにデコードするヘルパー関数。
func parseJSONArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var result []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON配列のデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// TestHealthCheck はヘルスチェックエンドポイントの正常動作を検証する。
func TestHealthCheck(t *testing.T) {
	t.Parallel()

	_, router, _ := setupTestServer(t)

	w := doRequest(router, http.MethodGet, "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSON(t, w)
	if result["status"] != "ok" {
		t.Errorf("status: got %v, want ok", result["status"])
	}
	if result["service"] != "taskdash" {
		t.Errorf("service: got %v, want taskdash", result["service"])
	}
}

// TestHandleList は通知一覧取得ハンドラのテスト。
func TestHandleList(t *testing.T) {
	t.Parallel()

	t.Run("通知が存在しない場合は空配列を返す", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/notifications", "user-1", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		result := parseJSONArray(t, w)
		if len(result) != 0 {
			t.Errorf("配列の長さ: got %d, want 0", len(result))
		}
	})

	t.Run("自分宛の通知のみを新しい順に返す", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		first := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "最初の通知")
		second := createTestNotification(t, s, "user-1", "TASK_COMMENTED", "新しい通知")
		// 別ユーザーの通知は含まれないことを確認するため
		createTestNotification(t, s, "user-2", "TASK_ASSIGNED", "他ユーザーの通知")

		w := doRequest(router, http.MethodGet, "/api/v1/notifications", "user-1", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		result := parseJSONArray(t, w)
		if len(result) != 2 {
			t.Fatalf("配列の長さ: got %d, want 2", len(result))
		}
		// 新しい順（後に作成したものが先頭）
		if int64(result[0]["id"].(float64)) != second {
			t.Errorf("先頭の通知ID: got %v, want %d", result[0]["id"], second)
		}
		if int64(result[1]["id"].(float64)) != first {
			t.Errorf("2番目の通知ID: got %v, want %d", result[1]["id"], first)
		}
	})

	t.Run("通知のフィールドが正しく返される", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		createTestNotification(t, s, "user-1", "TASK_STATUS_CHANGED", "ステータスが変更されました")

		w := doRequest(router, http.MethodGet, "/api/v1/notifications", "user-1", nil)

		result := parseJSONArray(t, w)
		if len(result) != 1 {
			t.Fatalf("配列の長さ: got %d, want 1", len(result))
		}

		notif := result[0]
		if notif["type"] != "TASK_STATUS_CHANGED" {
			t.Errorf("type: got %v, want TASK_STATUS_CHANGED", notif["type"])
		}
		if notif["content"] != "ステータスが変更されました" {
			t.Errorf("content: got %v, want ステータスが変更されました", notif["content"])
		}
		if notif["is_read"] != false {
			t.Errorf("is_read: got %v, want false", notif["is_read"])
		}
		recipient, ok := notif["recipient"].(map[string]any)
		if !ok {
			t.Fatalf("recipientがオブジェクトではありません: %v", notif["recipient"])
		}
		if recipient["id"] != "user-1" {
			t.Errorf("recipient.id: got %v, want user-1", recipient["id"])
		}
		if recipient["name"] != "Aさん" {
			t.Errorf("recipient.name: got %v, want Aさん", recipient["name"])
		}
	})

	t.Run("ページングで2ページ目を取得できる", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		for i := 0; i < 25; i++ {
			createTestNotification(t, s, "user-1", "TASK_COMMENTED", fmt.Sprintf("通知%d", i))
		}

		w := doRequest(router, http.MethodGet, "/api/v1/notifications", "user-1", nil)
		page1 := parseJSONArray(t, w)
		if len(page1) != 20 {
			t.Errorf("1ページ目の件数: got %d, want 20", len(page1))
		}

		w2 := doRequest(router, http.MethodGet, "/api/v1/notifications?page=2", "user-1", nil)
		page2 := parseJSONArray(t, w2)
		if len(page2) != 5 {
			t.Errorf("2ページ目の件数: got %d, want 5", len(page2))
		}
	})

	t.Run("ユーザーIDが未設定の場合はUnauthorized", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/notifications", "", nil)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleListUnread は未読通知一覧取得ハンドラのテスト。
func TestHandleListUnread(t *testing.T) {
	t.Parallel()

	t.Run("未読通知のみを返す", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "未読1")
		createTestNotification(t, s, "user-1", "TASK_COMMENTED", "未読2")
		readID := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "既読")

		if err := s.service.queries.MarkAsRead(context.Background(), readID); err != nil {
			t.Fatalf("既読処理に失敗: %v", err)
		}

		w := doRequest(router, http.MethodGet, "/api/v1/notifications/unread", "user-1", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		result := parseJSONArray(t, w)
		if len(result) != 2 {
			t.Errorf("配列の長さ: got %d, want 2", len(result))
		}
	})

	t.Run("未読通知がない場合は空配列を返す", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		readID := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "既読")
		if err := s.service.queries.MarkAsRead(context.Background(), readID); err != nil {
			t.Fatalf("既読処理に失敗: %v", err)
		}

		w := doRequest(router, http.MethodGet, "/api/v1/notifications/unread", "user-1", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		result := parseJSONArray(t, w)
		if len(result) != 0 {
			t.Errorf("配列の長さ: got %d, want 0", len(result))
		}
	})
}

// TestHandleMarkAsRead は通知を既読にするハンドラのテスト。
func TestHandleMarkAsRead(t *testing.T) {
	t.Parallel()

	t.Run("正常に通知を既読にできる", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		id := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "テスト")

		w := doRequest(router, http.MethodPut, fmt.Sprintf("/api/v1/notifications/%d/read", id), "user-1", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		// 既読になったことを未読一覧で確認する
		w2 := doRequest(router, http.MethodGet, "/api/v1/notifications/unread", "user-1", nil)
		unread := parseJSONArray(t, w2)
		if len(unread) != 0 {
			t.Errorf("未読通知の数: got %d, want 0", len(unread))
		}
	})

	t.Run("既読の通知を再度既読にしても成功する", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		id := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "テスト")
		path := fmt.Sprintf("/api/v1/notifications/%d/read", id)

		w := doRequest(router, http.MethodPut, path, "user-1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("1回目のステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		w2 := doRequest(router, http.MethodPut, path, "user-1", nil)
		if w2.Code != http.StatusOK {
			t.Errorf("2回目のステータスコード: got %d, want %d", w2.Code, http.StatusOK)
		}
	})

	t.Run("存在しない通知の場合はNotFound", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		w := doRequest(router, http.MethodPut, "/api/v1/notifications/9999/read", "user-1", nil)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("他ユーザーの通知を既読にするとForbidden", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		id := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "ユーザー1の通知")

		w := doRequest(router, http.MethodPut, fmt.Sprintf("/api/v1/notifications/%d/read", id), "user-2", nil)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("ユーザーIDが未設定の場合はUnauthorized", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		w := doRequest(router, http.MethodPut, "/api/v1/notifications/1/read", "", nil)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleMarkManyAsRead は一括既読ハンドラのテスト。
func TestHandleMarkManyAsRead(t *testing.T) {
	t.Parallel()

	t.Run("指定した複数の通知を既読にできる", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		id1 := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "通知1")
		id2 := createTestNotification(t, s, "user-1", "TASK_COMMENTED", "通知2")
		createTestNotification(t, s, "user-1", "TASK_COMMENTED", "既読にしない通知")

		body := map[string]any{"ids": []int64{id1, id2}}
		w := doRequest(router, http.MethodPut, "/api/v1/notifications/read", "user-1", body)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		w2 := doRequest(router, http.MethodGet, "/api/v1/notifications/unread", "user-1", nil)
		unread := parseJSONArray(t, w2)
		if len(unread) != 1 {
			t.Errorf("未読通知の数: got %d, want 1", len(unread))
		}
	})

	t.Run("存在しないIDや他ユーザー宛のIDは読み飛ばす", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		ownID := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "自分の通知")
		otherID := createTestNotification(t, s, "user-2", "TASK_ASSIGNED", "他ユーザーの通知")

		body := map[string]any{"ids": []int64{ownID, otherID, 9999}}
		w := doRequest(router, http.MethodPut, "/api/v1/notifications/read", "user-1", body)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		// 他ユーザーの未読通知は残っていることを確認する
		w2 := doRequest(router, http.MethodGet, "/api/v1/notifications/unread", "user-2", nil)
		unread := parseJSONArray(t, w2)
		if len(unread) != 1 {
			t.Errorf("user-2の未読通知の数: got %d, want 1", len(unread))
		}
	})

	t.Run("idsが未指定の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		w := doRequest(router, http.MethodPut, "/api/v1/notifications/read", "user-1", map[string]any{})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleUpdate は通知の部分更新ハンドラのテスト。
func TestHandleUpdate(t *testing.T) {
	t.Parallel()

	t.Run("指定したフィールドのみが更新される", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		id := createTestNotification(t, s, "user-1", "TASK_COMMENTED", "元の本文")

		body := map[string]any{"content": "更新後の本文"}
		w := doRequest(router, http.MethodPatch, fmt.Sprintf("/api/v1/notifications/%d", id), "user-1", body)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["content"] != "更新後の本文" {
			t.Errorf("content: got %v, want 更新後の本文", result["content"])
		}
		// 指定しなかったフィールドは保持される
		if result["type"] != "TASK_COMMENTED" {
			t.Errorf("type: got %v, want TASK_COMMENTED", result["type"])
		}
		if result["is_read"] != false {
			t.Errorf("is_read: got %v, want false", result["is_read"])
		}
	})

	t.Run("is_readを更新できる", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		id := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "テスト")

		body := map[string]any{"is_read": true}
		w := doRequest(router, http.MethodPatch, fmt.Sprintf("/api/v1/notifications/%d", id), "user-1", body)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["is_read"] != true {
			t.Errorf("is_read: got %v, want true", result["is_read"])
		}
	})

	t.Run("存在しない通知の場合はNotFound", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		body := map[string]any{"content": "更新"}
		w := doRequest(router, http.MethodPatch, "/api/v1/notifications/9999", "user-1", body)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("存在しない受信者への変更はNotFound", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		id := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "テスト")

		body := map[string]any{"recipient_id": "missing-user"}
		w := doRequest(router, http.MethodPatch, fmt.Sprintf("/api/v1/notifications/%d", id), "user-1", body)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("created_atの形式が不正な場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		id := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "テスト")

		body := map[string]any{"created_at": "2026/01/01"}
		w := doRequest(router, http.MethodPatch, fmt.Sprintf("/api/v1/notifications/%d", id), "user-1", body)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleDelete は通知削除ハンドラのテスト。
func TestHandleDelete(t *testing.T) {
	t.Parallel()

	t.Run("正常に通知を削除できる", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		id := createTestNotification(t, s, "user-1", "TASK_ASSIGNED", "削除対象")

		w := doRequest(router, http.MethodDelete, fmt.Sprintf("/api/v1/notifications/%d", id), "user-1", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		w2 := doRequest(router, http.MethodGet, "/api/v1/notifications", "user-1", nil)
		result := parseJSONArray(t, w2)
		if len(result) != 0 {
			t.Errorf("削除後の通知の数: got %d, want 0", len(result))
		}
	})

	t.Run("存在しない通知を削除しても成功する", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		// 不在を許容する点でPATCHのNotFoundとは非対称
		w := doRequest(router, http.MethodDelete, "/api/v1/notifications/9999", "user-1", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestHandleInsert は通知登録（内部API）ハンドラのテスト。
func TestHandleInsert(t *testing.T) {
	t.Parallel()

	t.Run("正常に通知を登録できる", func(t *testing.T) {
		t.Parallel()
		s, router, publisher := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")
		taskID, projectID := seedTask(t, s, "設計レビュー")

		body := map[string]any{
			"type":         "TASK_ASSIGNED",
			"content":      "タスクに割り当てられました",
			"recipient_id": "user-1",
			"task_id":      taskID,
			"project_id":   projectID,
		}
		w := doRequest(router, http.MethodPost, "/api/v1/internal/notifications", "system", body)

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["id"] == nil {
			t.Error("idが空です")
		}
		if result["is_read"] != false {
			t.Errorf("is_read: got %v, want false", result["is_read"])
		}
		task, ok := result["task"].(map[string]any)
		if !ok {
			t.Fatalf("taskがオブジェクトではありません: %v", result["task"])
		}
		if task["name"] != "設計レビュー" {
			t.Errorf("task.name: got %v, want 設計レビュー", task["name"])
		}

		// ライブ更新チャンネルに配信されたことを確認する
		topics := publisher.published()
		if len(topics) != 1 {
			t.Fatalf("配信回数: got %d, want 1", len(topics))
		}
		if topics[0] != TopicForUser("user-1") {
			t.Errorf("配信トピック: got %s, want %s", topics[0], TopicForUser("user-1"))
		}
	})

	t.Run("存在しない受信者の場合はNotFound", func(t *testing.T) {
		t.Parallel()
		_, router, publisher := setupTestServer(t)

		body := map[string]any{
			"type":         "TASK_ASSIGNED",
			"content":      "テスト",
			"recipient_id": "missing-user",
		}
		w := doRequest(router, http.MethodPost, "/api/v1/internal/notifications", "system", body)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
		if len(publisher.published()) != 0 {
			t.Error("失敗した登録でライブ配信が行われた")
		}
	})

	t.Run("存在しないタスクの場合はNotFound", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)
		seedUser(t, s, "user-1", "Aさん")

		body := map[string]any{
			"type":         "TASK_ASSIGNED",
			"content":      "テスト",
			"recipient_id": "user-1",
			"task_id":      9999,
		}
		w := doRequest(router, http.MethodPost, "/api/v1/internal/notifications", "system", body)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("必須フィールドが未指定の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		body := map[string]any{"type": "TASK_ASSIGNED"}
		w := doRequest(router, http.MethodPost, "/api/v1/internal/notifications", "system", body)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestInsertAndMarkReadFlow は通知登録から既読までの一連のフローを検証する。
func TestInsertAndMarkReadFlow(t *testing.T) {
	t.Parallel()

	s, router, _ := setupTestServer(t)
	seedUser(t, s, "user-1", "Aさん")

	body := map[string]any{
		"type":         "TASK_COMMENTED",
		"content":      "コメントが追加されました",
		"recipient_id": "user-1",
	}
	w := doRequest(router, http.MethodPost, "/api/v1/internal/notifications", "system", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("通知登録に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}

	result := parseJSON(t, w)
	id, ok := result["id"].(float64)
	if !ok {
		t.Fatal("登録結果にidが含まれていません")
	}

	// created_atがRFC3339形式で返ることを確認する
	createdAt, ok := result["created_at"].(string)
	if !ok || !strings.Contains(createdAt, "T") {
		t.Errorf("created_at: got %v, want RFC3339形式", result["created_at"])
	}

	// 未読一覧に含まれることを確認する
	w2 := doRequest(router, http.MethodGet, "/api/v1/notifications/unread", "user-1", nil)
	unread := parseJSONArray(t, w2)
	if len(unread) != 1 {
		t.Fatalf("未読通知の数: got %d, want 1", len(unread))
	}

	// 既読にする
	w3 := doRequest(router, http.MethodPut, fmt.Sprintf("/api/v1/notifications/%d/read", int64(id)), "user-1", nil)
	if w3.Code != http.StatusOK {
		t.Errorf("既読処理のステータスコード: got %d, want %d", w3.Code, http.StatusOK)
	}

	// 全通知一覧には引き続き含まれることを確認する
	w4 := doRequest(router, http.MethodGet, "/api/v1/notifications", "user-1", nil)
	allNotifs := parseJSONArray(t, w4)
	if len(allNotifs) != 1 {
		t.Errorf("全通知の数: got %d, want 1", len(allNotifs))
	}
	if allNotifs[0]["is_read"] != true {
		t.Errorf("is_read: got %v, want true", allNotifs[0]["is_read"])
	}
}
