// タスク管理ダッシュボードの通知バックエンドのエントリポイント。
// 通知レコードのCRUDとライブ配信、チャットWebhookへの集約配信、
// 期限接近タスクの走査、既読通知の定期削除をまとめて起動する。
package main

import (
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nao1215/taskdash/internal/aggregator"
	"github.com/nao1215/taskdash/internal/chat"
	"github.com/nao1215/taskdash/internal/deadline"
	"github.com/nao1215/taskdash/internal/directory"
	directorydb "github.com/nao1215/taskdash/internal/directory/db"
	"github.com/nao1215/taskdash/internal/livefeed"
	"github.com/nao1215/taskdash/internal/notification"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("TASKDASH_DB")
	if dbPath == "" {
		dbPath = "/data/taskdash.db?_journal_mode=WAL&_busy_timeout=5000"
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("データベース接続に失敗: %v", err)
	}

	if err := directory.InitSchema(sqlDB); err != nil {
		log.Fatalf("参照系スキーマの初期化に失敗: %v", err)
	}

	hub := livefeed.NewHub()

	server, err := notification.NewServer(port, sqlDB, hub)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}

	channel := chat.NewWebhookChannel(chat.ConfigFromEnv())
	queries := directorydb.New(sqlDB)

	agg := aggregator.New(queries, channel, durationEnv("NOTIFY_FLUSH_INTERVAL", 3*time.Second))
	agg.Start()

	cleaner := notification.NewCleaner(
		server.Service(),
		durationEnv("NOTIFY_RETENTION", 24*time.Hour),
		durationEnv("NOTIFY_CLEANUP_INTERVAL", 24*time.Hour),
	)
	cleaner.Start()

	scanner := deadline.NewScanner(
		queries,
		agg,
		server.Service(),
		durationEnv("DEADLINE_WINDOW", 24*time.Hour),
		durationEnv("DEADLINE_SCAN_INTERVAL", time.Hour),
	)
	scanner.Start()

	go func() {
		log.Printf("通知バックエンドを起動します: :%s", port)
		if err := server.Run(); err != nil {
			log.Fatalf("通知バックエンドの起動に失敗: %v", err)
		}
	}()

	// シグナル受信でバックグラウンドジョブを停止し、pendingの最終フラッシュを行う
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("シャットダウンします")
	scanner.Stop()
	cleaner.Stop()
	agg.Stop()
}

// durationEnv は環境変数から時間間隔を読み込む。未設定または不正な値の場合はデフォルトを返す。
func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("%s の値 %q が不正なためデフォルト %v を使用します", key, raw, fallback)
		return fallback
	}
	return d
}
