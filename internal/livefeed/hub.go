package livefeed

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// sendBufferSize は購読者ごとの送信バッファの長さ。
// バッファが満杯の購読者へのメッセージは破棄される。
const sendBufferSize = 16

// subscriber は1つのWebSocket接続を表す。
type subscriber struct {
	// conn はWebSocket接続。
	conn *websocket.Conn
	// send は配信待ちメッセージのバッファ。
	// Publishと競合しても安全なよう、このチャンネル自体は決して閉じない。
	send chan []byte
	// quit はwritePumpの終了通知チャンネル。
	quit chan struct{}
	// topic は購読しているトピック名。
	topic string
	// closeOnce はquitチャンネルの多重クローズを防ぐ。
	closeOnce sync.Once
}

// close はwritePumpを終了させる。
func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.quit) })
}

// Hub はトピック単位のWebSocket配信ハブ。
type Hub struct {
	// mu はsubscribersを保護するミューテックス。
	mu sync.RWMutex
	// subscribers はトピック名から購読者集合へのマップ。
	subscribers map[string]map[*subscriber]struct{}
	// upgrader はHTTP接続のWebSocketへのアップグレード設定。
	upgrader websocket.Upgrader
}

// NewHub は新しい配信ハブを生成する。
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Subscribe はHTTP接続をWebSocketへアップグレードし、指定トピックの購読を開始する。
// 接続が閉じられるまで購読は維持される。
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[LiveFeed] WebSocketへのアップグレードに失敗: %v", err)
		return
	}

	sub := &subscriber{
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		quit:  make(chan struct{}),
		topic: topic,
	}
	h.add(sub)

	go sub.writePump()
	go h.readPump(sub)
}

// add は購読者をトピックに登録する。
func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[sub.topic]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subscribers[sub.topic] = set
	}
	set[sub] = struct{}{}
}

// remove は購読者を登録解除し、接続を閉じる。
func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subscribers[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subscribers, sub.topic)
		}
	}
	h.mu.Unlock()

	sub.close()
	_ = sub.conn.Close()
}

// readPump は接続のクローズを検知するための読み取りループ。
// クライアントからのメッセージは想定しないため内容は破棄する。
func (h *Hub) readPump(sub *subscriber) {
	defer h.remove(sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump は送信バッファのメッセージを接続へ書き込むループ。
func (s *subscriber) writePump() {
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-s.quit:
			return
		}
	}
}

// Publish は指定トピックの全購読者へペイロードを配信する。
// ファイアアンドフォーゲットで、配信結果は呼び出し元に返らない。
// 送信バッファが満杯の購読者へのメッセージは破棄される。
func (h *Hub) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[LiveFeed] ペイロードのシリアライズに失敗: %v", err)
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers[topic]))
	for sub := range h.subscribers[topic] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	// 書き込みはロック外で行う
	for _, sub := range subs {
		select {
		case sub.send <- data:
		default:
			log.Printf("[LiveFeed] 送信バッファが満杯のためメッセージを破棄: topic=%s", topic)
		}
	}
}

// SubscriberCount は指定トピックの現在の購読者数を返す。
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
