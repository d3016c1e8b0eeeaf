// Package directory はユーザー・プロジェクト・タスクの参照系ストアを提供する。
//
// 業務エンティティのCRUD自体は本サービスの対象外であり、通知パイプラインが
// 必要とする参照（受信者の実在確認、タスクの担当者集合、期限接近タスクの走査）と、
// 上位のCRUD層やテストが使用する最小限の書き込みのみを公開する。
package directory
