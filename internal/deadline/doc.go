// Package deadline は期限が近づいたタスクを定期的に走査し、通知を発行するジョブを提供する。
//
// 通知パイプラインへのプロデューサーであり、配信自体は行わない。
// 永続レコードの登録は通知サービスへ、チャットへの集約配信はアグリゲータへ委譲する。
package deadline
