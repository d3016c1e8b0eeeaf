package aggregator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	directorydb "github.com/nao1215/taskdash/internal/directory/db"
	"github.com/nao1215/taskdash/pkg/notifytype"
)

// TaskDirectory はタスクと担当者の参照に使用するインターフェース。
// *directorydb.Queries がそのまま実装を満たす。
type TaskDirectory interface {
	GetTaskByID(ctx context.Context, id int64) (directorydb.Task, error)
	ListTaskAssignees(ctx context.Context, taskID int64) ([]directorydb.User, error)
}

// Channel はグループ化された通知の配信先となる外部チャンネルのインターフェース。
// 送信は同期・ベストエフォートで、失敗はfalseとして返る（例外は発生しない）。
type Channel interface {
	IsEnabled() bool
	ShouldSendType(t notifytype.Type) bool
	SendGroupedNotification(g *GroupedNotification) bool
}

// Recipient はグループ通知の宛先となるユーザー。
type Recipient struct {
	// ID はユーザーの一意識別子。
	ID string
	// Name は表示名。
	Name string
}

// GroupedNotification は1回のフラッシュで配信されるグループ通知。
// 同一の(タスク, カテゴリ)についてウィンドウ内に蓄積された宛先と本文を持つ。
type GroupedNotification struct {
	// Type は通知のカテゴリ。
	Type notifytype.Type
	// Title は通知の見出し。
	Title string
	// TaskID は対象タスクのID。
	TaskID int64
	// TaskName は対象タスクの名前。
	TaskName string
	// Recipients はタスクの担当者と追加宛先の和集合（重複なし）。
	Recipients []Recipient
	// AdditionalContent は補足本文。ウィンドウ内の最後の書き込みが残る。
	AdditionalContent string
}

// pendingEntry はフラッシュ待ちのグループ通知。キーごとに高々1つ存在する。
type pendingEntry struct {
	// typ は通知のカテゴリ。
	typ notifytype.Type
	// title は通知の見出し。
	title string
	// taskID は対象タスクのID。
	taskID int64
	// taskName は対象タスクの名前（作成時点のスナップショット）。
	taskName string
	// assignees は作成時点のタスク担当者。
	assignees []Recipient
	// extra は追加宛先。ユーザーIDで重複排除される。
	extra map[string]Recipient
	// content は補足本文。後勝ちで上書きされる。
	content string
}

// mergeRecipients は追加宛先をエントリに統合する。
func (e *pendingEntry) mergeRecipients(recipients []Recipient) {
	for _, r := range recipients {
		e.extra[r.ID] = r
	}
}

// toGrouped は配信用のグループ通知を生成する。
// 宛先は担当者と追加宛先の和集合で、追加宛先はID順に並ぶ。
func (e *pendingEntry) toGrouped() *GroupedNotification {
	seen := make(map[string]struct{}, len(e.assignees)+len(e.extra))
	recipients := make([]Recipient, 0, len(e.assignees)+len(e.extra))
	for _, r := range e.assignees {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		recipients = append(recipients, r)
	}

	extraIDs := make([]string, 0, len(e.extra))
	for id := range e.extra {
		if _, ok := seen[id]; ok {
			continue
		}
		extraIDs = append(extraIDs, id)
	}
	sort.Strings(extraIDs)
	for _, id := range extraIDs {
		recipients = append(recipients, e.extra[id])
	}

	return &GroupedNotification{
		Type:              e.typ,
		Title:             e.title,
		TaskID:            e.taskID,
		TaskName:          e.taskName,
		Recipients:        recipients,
		AdditionalContent: e.content,
	}
}

// Aggregator は通知イベントを(タスク, カテゴリ)単位で集約するコンポーネント。
// pendingテーブルは本コンポーネントが排他的に所有し、mutexで保護される。
type Aggregator struct {
	// mu はpendingテーブルを保護するミューテックス。
	mu sync.Mutex
	// pending はフラッシュ待ちのグループ通知。キーは "{taskID}-{type}"。
	pending map[string]*pendingEntry
	// directory はタスクと担当者の参照先。
	directory TaskDirectory
	// channel はグループ通知の配信先。
	channel Channel
	// interval はバックグラウンドフラッシュの間隔。
	interval time.Duration
	// done はバックグラウンドループの停止通知チャンネル。
	done chan struct{}
	// stopOnce はStopの多重呼び出しを防ぐ。
	stopOnce sync.Once
}

// New は新しいアグリゲータを生成する。
func New(directory TaskDirectory, channel Channel, interval time.Duration) *Aggregator {
	return &Aggregator{
		pending:   make(map[string]*pendingEntry),
		directory: directory,
		channel:   channel,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// pendingKey は(タスク, カテゴリ)の複合キーを生成する。
func pendingKey(taskID int64, typ notifytype.Type) string {
	return fmt.Sprintf("%d-%s", taskID, typ)
}

// AddNotification は通知イベントをpendingテーブルに積む。
// 同一キーのエントリが既に存在する場合は宛先を統合する。外部チャンネルが
// 無効またはカテゴリが許可されていない場合は何もしない。タスクの参照に失敗した
// 場合もログのみで戻る。呼び出し元の業務処理を失敗させることはない。
func (a *Aggregator) AddNotification(ctx context.Context, typ notifytype.Type, title string, taskID int64, recipients []Recipient) {
	if !a.channel.IsEnabled() || !a.channel.ShouldSendType(typ) {
		return
	}

	key := pendingKey(taskID, typ)

	// 既存エントリがあればタスク参照なしで統合できる
	a.mu.Lock()
	if e, ok := a.pending[key]; ok {
		e.mergeRecipients(recipients)
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	// タスクのスナップショット取得はロック外で行う
	entry, err := a.newEntry(ctx, typ, title, taskID)
	if err != nil {
		log.Printf("[Aggregator] タスク%dの参照に失敗したため通知を破棄: %v", taskID, err)
		return
	}
	entry.mergeRecipients(recipients)

	a.mu.Lock()
	defer a.mu.Unlock()
	// ロック解放中に他のゴルーチンが同一キーを作成していた場合は統合する
	if e, ok := a.pending[key]; ok {
		e.mergeRecipients(recipients)
		return
	}
	a.pending[key] = entry
}

// AddContentToNotification は補足本文付きの通知イベントをpendingテーブルに積む。
// キーと作成の規則はAddNotificationと同じで、本文は同一ウィンドウ内で後勝ちとなる。
func (a *Aggregator) AddContentToNotification(ctx context.Context, typ notifytype.Type, title string, taskID int64, content string) {
	if !a.channel.IsEnabled() || !a.channel.ShouldSendType(typ) {
		return
	}

	key := pendingKey(taskID, typ)

	a.mu.Lock()
	if e, ok := a.pending[key]; ok {
		e.content = content
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	entry, err := a.newEntry(ctx, typ, title, taskID)
	if err != nil {
		log.Printf("[Aggregator] タスク%dの参照に失敗したため通知を破棄: %v", taskID, err)
		return
	}
	entry.content = content

	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.pending[key]; ok {
		e.content = content
		return
	}
	a.pending[key] = entry
}

// newEntry はタスクの最新状態を参照して新しいエントリを生成する。
// 担当者集合は毎回取得し直し、割り当ての最新状態を反映する。
func (a *Aggregator) newEntry(ctx context.Context, typ notifytype.Type, title string, taskID int64) (*pendingEntry, error) {
	task, err := a.directory.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗: %w", err)
	}
	assignees, err := a.directory.ListTaskAssignees(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("担当者の取得に失敗: %w", err)
	}

	entry := &pendingEntry{
		typ:      typ,
		title:    title,
		taskID:   task.ID,
		taskName: task.Name,
		extra:    make(map[string]Recipient),
	}
	for _, u := range assignees {
		entry.assignees = append(entry.assignees, Recipient{ID: u.ID, Name: u.Name})
	}
	return entry, nil
}

// Flush はpendingテーブル全体を空のテーブルと入れ替え、取り出した各エントリを
// 1件ずつ外部チャンネルへ配信する。入れ替えのみロック下で行い、配信I/Oはロック外で
// 実行するため、配信中も新しいイベントの受付は塞がれない。
// 配信失敗はログに記録するのみで、同一サイクルの他のグループには影響しない。
// 失敗したエントリの再投入は行わない（外部チャンネルへは高々1回の配信）。
func (a *Aggregator) Flush(ctx context.Context) {
	a.mu.Lock()
	drained := a.pending
	a.pending = make(map[string]*pendingEntry)
	a.mu.Unlock()

	for key, entry := range drained {
		grouped := entry.toGrouped()
		if len(grouped.Recipients) == 0 {
			// 通常は担当者が宛先を構成するため起こらないが、宛先なしでの配信は行わない
			log.Printf("[Aggregator] 宛先が空のため配信をスキップ: key=%s", key)
			continue
		}
		if !a.channel.SendGroupedNotification(grouped) {
			log.Printf("[Aggregator] グループ通知の配信に失敗: key=%s", key)
		}
	}
}

// PendingCount はフラッシュ待ちのエントリ数を返す。
func (a *Aggregator) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Start は定期フラッシュのバックグラウンドループを開始する。
func (a *Aggregator) Start() {
	ticker := time.NewTicker(a.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Flush(context.Background())
			case <-a.done:
				return
			}
		}
	}()
	log.Printf("[Aggregator] 定期フラッシュを開始します: 間隔=%v", a.interval)
}

// Stop はバックグラウンドループを停止し、残っているエントリを最後に1回だけ
// ベストエフォートでフラッシュする。
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
		a.Flush(context.Background())
	})
}
