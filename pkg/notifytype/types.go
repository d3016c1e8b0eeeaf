// Package notifytype は通知のカテゴリを表す型と定数を提供する。
//
// 既知のカテゴリは定数として定義するが、外部チャンネルの許可リスト設定と
// 前方互換を保つため、未知の文字列もType値としてそのまま扱える。
package notifytype

// Type は通知のカテゴリを表す。
type Type string

const (
	// TypeTaskAssigned はタスクが担当者に割り当てられたことを表す。
	TypeTaskAssigned Type = "TASK_ASSIGNED"
	// TypeTaskStatusChanged はタスクのステータスが変更されたことを表す。
	TypeTaskStatusChanged Type = "TASK_STATUS_CHANGED"
	// TypeTaskCommented はタスクにコメントが追加されたことを表す。
	TypeTaskCommented Type = "TASK_COMMENTED"
	// TypeTaskDeadlineApproaching はタスクの期限が近づいていることを表す。
	TypeTaskDeadlineApproaching Type = "TASK_DEADLINE_APPROACHING"
	// TypeProposalStatusChanged は提案のステータスが変更されたことを表す。
	TypeProposalStatusChanged Type = "PROPOSAL_STATUS_CHANGED"
	// TypeProjectMemberAdded はプロジェクトにメンバーが追加されたことを表す。
	TypeProjectMemberAdded Type = "PROJECT_MEMBER_ADDED"
)

// String はTypeの文字列表現を返す。
func (t Type) String() string {
	return string(t)
}

// Known は既知のカテゴリ定数に含まれるかどうかを返す。
// 未知のカテゴリも配信自体は可能なため、判定は診断目的でのみ使用する。
func (t Type) Known() bool {
	switch t {
	case TypeTaskAssigned, TypeTaskStatusChanged, TypeTaskCommented,
		TypeTaskDeadlineApproaching, TypeProposalStatusChanged, TypeProjectMemberAdded:
		return true
	}
	return false
}
