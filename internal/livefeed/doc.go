// Package livefeed は接続中のクライアントへ新規通知をリアルタイム配信するハブを提供する。
//
// トピック単位のpublish/subscribeで、配信保証やバックプレッシャーはない。
// 購読者への送信バッファが詰まっている場合、そのメッセージは破棄される。
// このチャンネルはクライアントの画面更新専用であり、永続ストアの代わりにはならない。
package livefeed
