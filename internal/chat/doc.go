// Package chat はチャットサービスのIncoming Webhookへ通知を配信するチャンネルを提供する。
//
// 配信はすべて同期・ベストエフォートで、トランスポートエラーや非2xx応答は
// 例外ではなくfalseとログ1行に変換される。呼び出し元はfalseを
// 「このサイクルでは諦める（リトライしない）」として扱う。
package chat
