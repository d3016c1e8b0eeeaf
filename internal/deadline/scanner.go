package deadline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nao1215/taskdash/internal/aggregator"
	directorydb "github.com/nao1215/taskdash/internal/directory/db"
	"github.com/nao1215/taskdash/internal/notification"
	"github.com/nao1215/taskdash/pkg/notifytype"
)

// Scanner は期限接近タスクを定期的に走査するバックグラウンドジョブ。
type Scanner struct {
	// directory はタスクと担当者の参照先。
	directory *directorydb.Queries
	// agg はチャット向けのグループ通知の投入先。
	agg *aggregator.Aggregator
	// service は永続レコードの登録先。
	service *notification.Service
	// window は「期限接近」と判定する残り時間。
	window time.Duration
	// interval は走査の実行間隔。
	interval time.Duration
	// alerted はこのプロセスで既に通知を発行したタスクID。
	// 走査のたびに同じタスクへ重複した通知を発行しないためのもの。
	alerted map[int64]struct{}
	// done はバックグラウンドループの停止通知チャンネル。
	done chan struct{}
}

// NewScanner は新しい期限スキャナーを生成する。
func NewScanner(directory *directorydb.Queries, agg *aggregator.Aggregator, service *notification.Service, window, interval time.Duration) *Scanner {
	return &Scanner{
		directory: directory,
		agg:       agg,
		service:   service,
		window:    window,
		interval:  interval,
		alerted:   make(map[int64]struct{}),
		done:      make(chan struct{}),
	}
}

// Start は定期走査のバックグラウンドループを開始する。
func (s *Scanner) Start() {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.ScanOnce(context.Background())
			case <-s.done:
				return
			}
		}
	}()
	log.Printf("[Deadline] 期限走査を開始します: 判定窓=%v, 実行間隔=%v", s.window, s.interval)
}

// Stop はバックグラウンドループを停止する。
func (s *Scanner) Stop() {
	close(s.done)
}

// ScanOnce は走査を1回実行する。期限が判定窓の内側にある未完了タスクについて、
// チャット向けのグループ通知を投入し、担当者ごとに永続レコードを登録する。
// 個々の失敗はログに記録するのみで、他のタスクの処理は継続する。
func (s *Scanner) ScanOnce(ctx context.Context) {
	cutoff := time.Now().Add(s.window)
	tasks, err := s.directory.ListTasksDueBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[Deadline] 期限接近タスクの取得に失敗: %v", err)
		return
	}

	for _, task := range tasks {
		if _, ok := s.alerted[task.ID]; ok {
			continue
		}
		s.alerted[task.ID] = struct{}{}

		title := fmt.Sprintf("タスク「%s」の期限が近づいています", task.Name)
		s.agg.AddNotification(ctx, notifytype.TypeTaskDeadlineApproaching, title, task.ID, nil)

		assignees, err := s.directory.ListTaskAssignees(ctx, task.ID)
		if err != nil {
			log.Printf("[Deadline] タスク%dの担当者の取得に失敗: %v", task.ID, err)
			continue
		}
		for _, assignee := range assignees {
			taskID := task.ID
			projectID := task.ProjectID
			if _, err := s.service.Insert(ctx, notification.InsertParams{
				Type:        notifytype.TypeTaskDeadlineApproaching.String(),
				Content:     title,
				RecipientID: assignee.ID,
				TaskID:      &taskID,
				ProjectID:   &projectID,
			}); err != nil {
				log.Printf("[Deadline] タスク%dの通知レコードの登録に失敗: %v", task.ID, err)
			}
		}
	}
}
