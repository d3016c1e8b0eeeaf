// Package notification は通知レコードの永続化とライブ配信を提供する。
//
// ドメインサービスからのイベントを永続的な通知レコードとして保存し、
// 受信者ごとの既読・未読状態を管理する。登録された通知はWebSocketの
// ライブ更新チャンネルへ即時に配信される。既読の古い通知は定期的に削除される。
package notification
