package notification

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	directorydb "github.com/nao1215/taskdash/internal/directory/db"
	"github.com/nao1215/taskdash/internal/livefeed"
	notificationdb "github.com/nao1215/taskdash/internal/notification/db"
	"github.com/nao1215/taskdash/pkg/middleware"
)

// Server は通知APIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// service は通知レコードのライフサイクルを管理するサービス。
	service *Service
	// hub はWebSocketのライブ更新チャンネル。
	hub *livefeed.Hub
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewServer は新しい通知サーバーを生成する。
// 通知テーブルのスキーマ作成を行う。参照系スキーマは呼び出し側で適用しておくこと。
func NewServer(port string, sqlDB *sql.DB, hub *livefeed.Hub) (*Server, error) {
	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	// hub未指定（ライブ配信なし）の構成を許容する
	var publisher Publisher
	if hub != nil {
		publisher = hub
	}

	s := &Server{
		router:  router,
		port:    port,
		service: NewService(notificationdb.New(sqlDB), directorydb.New(sqlDB), publisher),
		hub:     hub,
		db:      sqlDB,
	}
	s.setupRoutes()

	return s, nil
}

// Service は通知サービスを返す。
// 期限スキャナーなど、HTTP以外の経路から通知を登録する呼び出し側が使用する。
func (s *Server) Service() *Service {
	return s.service
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(jwtSecret))
	{
		notifications := api.Group("/notifications")
		{
			// 通知一覧取得（新しい順、ページング）
			notifications.GET("", s.handleList())
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleListUnread())
			// ライブ更新のWebSocket購読
			notifications.GET("/ws", s.handleSubscribe())
			// 複数の通知をまとめて既読にする
			notifications.PUT("/read", s.handleMarkManyAsRead())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkAsRead())
			// 通知の部分更新
			notifications.PATCH("/:id", s.handleUpdate())
			// 通知の削除
			notifications.DELETE("/:id", s.handleDelete())
		}

		// 通知登録（内部API - ドメインサービスから呼び出される）
		internal := api.Group("/internal")
		{
			internal.POST("/notifications", s.handleInsert())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "taskdash"})
	})
}

// pageParam はクエリパラメータからページ番号を取得する。不正な値は1ページ目として扱う。
func pageParam(c *gin.Context) int64 {
	page, err := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// idParam はパスパラメータから通知IDを取得する。
func idParam(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

// handleList は認証済みユーザーの通知一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		notifications, err := s.service.ListByRecipient(c.Request.Context(), userID, pageParam(c), false)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, notifications)
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		notifications, err := s.service.ListByRecipient(c.Request.Context(), userID, pageParam(c), true)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知一覧の取得に失敗しました"})
			log.Printf("未読通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, notifications)
	}
}

// handleSubscribe は認証済みユーザーのライブ更新をWebSocketで購読するハンドラ。
func (s *Server) handleSubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		s.hub.Subscribe(c.Writer, c.Request, TopicForUser(userID))
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
// 既に既読の通知を再度既読にしても成功として扱う（冪等）。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		id, err := idParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDが不正です"})
			return
		}

		// 通知の存在確認と所有者チェック
		n, err := s.service.Get(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の取得に失敗しました"})
			log.Printf("通知取得エラー: %v", err)
			return
		}
		if n.Recipient.ID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
			return
		}

		if err := s.service.MarkAsRead(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			log.Printf("通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
	}
}

// markManyRequest は一括既読リクエストのJSON構造。
type markManyRequest struct {
	// IDs は既読にする通知IDのリスト。
	IDs []int64 `json:"ids" binding:"required"`
}

// handleMarkManyAsRead は複数の通知をまとめて既読にするハンドラ。
// 存在しないIDや他ユーザー宛のIDは読み飛ばされる（冪等）。
func (s *Server) handleMarkManyAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req markManyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if err := s.service.MarkManyAsRead(c.Request.Context(), userID, req.IDs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "一括既読処理に失敗しました"})
			log.Printf("一括既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
	}
}

// updateRequest は部分更新リクエストのJSON構造。指定のないフィールドは変更されない。
type updateRequest struct {
	// Type は通知のカテゴリ。
	Type *string `json:"type"`
	// Content は通知の本文。
	Content *string `json:"content"`
	// IsRead は既読状態。
	IsRead *bool `json:"is_read"`
	// CreatedAt は作成日時（RFC3339形式）。
	CreatedAt *string `json:"created_at"`
	// RelatedID は任意の関連エンティティへの参照。
	RelatedID *int64 `json:"related_id"`
	// RecipientID は通知先のユーザーID。
	RecipientID *string `json:"recipient_id"`
	// TaskID は文脈となるタスクのID。
	TaskID *int64 `json:"task_id"`
	// ProjectID は文脈となるプロジェクトのID。
	ProjectID *int64 `json:"project_id"`
}

// handleUpdate は通知を部分更新するハンドラ。
// 対象の通知が存在しない場合はNotFoundを返す（Deleteの不在許容とは非対称）。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		id, err := idParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDが不正です"})
			return
		}

		var req updateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		params := UpdateParams{
			Type:        req.Type,
			Content:     req.Content,
			IsRead:      req.IsRead,
			RelatedID:   req.RelatedID,
			RecipientID: req.RecipientID,
			TaskID:      req.TaskID,
			ProjectID:   req.ProjectID,
		}
		if req.CreatedAt != nil {
			createdAt, err := time.Parse(time.RFC3339, *req.CreatedAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "created_atの形式が不正です"})
				return
			}
			params.CreatedAt = &createdAt
		}

		updated, err := s.service.Update(c.Request.Context(), id, params)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "更新対象が見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の更新に失敗しました"})
			log.Printf("通知更新エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// handleDelete は通知を削除するハンドラ。
// 対象が存在しない場合も成功として扱う（冪等。Updateの厳格な不在エラーとは非対称）。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		id, err := idParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDが不正です"})
			return
		}

		if err := s.service.Delete(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の削除に失敗しました"})
			log.Printf("通知削除エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "通知を削除しました"})
	}
}

// insertRequest は通知登録リクエストのJSON構造。
type insertRequest struct {
	// Type は通知のカテゴリ。
	Type string `json:"type" binding:"required"`
	// Content は通知の本文。
	Content string `json:"content" binding:"required"`
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipient_id" binding:"required"`
	// TaskID は文脈となるタスクのID。
	TaskID *int64 `json:"task_id"`
	// ProjectID は文脈となるプロジェクトのID。
	ProjectID *int64 `json:"project_id"`
	// RelatedID は任意の関連エンティティへの参照。
	RelatedID *int64 `json:"related_id"`
}

// handleInsert は通知を永続化しライブ配信するハンドラ。
// 内部API（タスク更新などを行うドメインサービスから呼び出される）。
func (s *Server) handleInsert() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req insertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		resp, err := s.service.Insert(c.Request.Context(), InsertParams{
			Type:        req.Type,
			Content:     req.Content,
			RecipientID: req.RecipientID,
			TaskID:      req.TaskID,
			ProjectID:   req.ProjectID,
			RelatedID:   req.RelatedID,
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "参照先のエンティティが見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			log.Printf("通知作成エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, resp)
	}
}
