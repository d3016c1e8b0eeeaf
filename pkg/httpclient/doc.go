// Package httpclient は外部サービスへのJSON over HTTP通信を行うクライアントを提供する。
//
// チャットWebhookへの通知配信や、他のバックエンドサービスのAPI呼び出しに使用する。
// タイムアウト付きのPOST/GETと、サービス間でのユーザーID伝播をまとめて扱う。
package httpclient
