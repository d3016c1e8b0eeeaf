package notification

import (
	"context"
	"log"
	"time"
)

// Cleaner は既読の古い通知を定期的に削除するバックグラウンドジョブ。
// 保持期間と実行間隔は独立して設定できる。
type Cleaner struct {
	// service は削除処理を行う通知サービス。
	service *Service
	// retention は既読通知の保持期間。
	retention time.Duration
	// interval は削除処理の実行間隔。
	interval time.Duration
	// done はバックグラウンドループの停止通知チャンネル。
	done chan struct{}
}

// NewCleaner は新しいクリーナーを生成する。
func NewCleaner(service *Service, retention, interval time.Duration) *Cleaner {
	return &Cleaner{
		service:   service,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Start は定期削除のバックグラウンドループを開始する。
func (c *Cleaner) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.RunOnce(context.Background())
			case <-c.done:
				return
			}
		}
	}()
	log.Printf("[Cleaner] 既読通知の定期削除を開始します: 保持期間=%v, 実行間隔=%v", c.retention, c.interval)
}

// Stop はバックグラウンドループを停止する。
func (c *Cleaner) Stop() {
	close(c.done)
}

// RunOnce は削除処理を1回実行する。失敗はログに記録するのみで呼び出し元には返さない。
func (c *Cleaner) RunOnce(ctx context.Context) {
	deleted, err := c.service.PurgeRead(ctx, c.retention)
	if err != nil {
		log.Printf("[Cleaner] 既読通知の削除に失敗: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[Cleaner] 既読通知を%d件削除しました", deleted)
	}
}
