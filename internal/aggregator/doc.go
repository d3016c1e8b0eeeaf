// Package aggregator は通知イベントの集約と外部チャンネルへの一括配信を提供する。
//
// リクエスト処理中に発生した通知イベントを(タスク, カテゴリ)単位でメモリ上に
// まとめ、一定間隔のフラッシュでグループごとに1件のメッセージとして外部
// チャンネルへ配信する。同一ウィンドウ内の宛先は和集合として1通に集約される。
// 配信はベストエフォートであり、失敗してもリトライや呼び出し元への伝播は行わない。
package aggregator
