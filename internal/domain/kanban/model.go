// Package kanban models replenishment cards and advances them when the
// goods they triggered are received.
package kanban

import (
	"time"

	"replenix/internal/core/id"
)

// Stage is a card's position in its replenishment cycle.
type Stage string

const (
	StageCreated   Stage = "created"
	StageTriggered Stage = "triggered"
	StageOrdered   Stage = "ordered"
	StageInTransit Stage = "in_transit"
	StageReceived  Stage = "received"
	StageRestocked Stage = "restocked"
)

// Receivable reports whether receiving may move a card out of s.
func (s Stage) Receivable() bool {
	return s == StageOrdered || s == StageInTransit
}

// MethodSystem marks transitions made by the platform rather than a scan.
const MethodSystem = "system"

type Card struct {
	ID              id.ID     `db:"id" json:"id"`
	TenantID        id.ID     `db:"tenant_id" json:"tenantId"`
	LoopID          id.ID     `db:"loop_id" json:"loopId"`
	CardNumber      int       `db:"card_number" json:"cardNumber"`
	Stage           Stage     `db:"current_stage" json:"currentStage"`
	StageEnteredAt  time.Time `db:"current_stage_entered_at" json:"currentStageEnteredAt"`
	CompletedCycles int       `db:"completed_cycles" json:"completedCycles"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// Transition is one recorded stage change of a card.
type Transition struct {
	ID             id.ID          `db:"id" json:"id"`
	TenantID       id.ID          `db:"tenant_id" json:"tenantId"`
	CardID         id.ID          `db:"card_id" json:"cardId"`
	LoopID         id.ID          `db:"loop_id" json:"loopId"`
	CycleNumber    int            `db:"cycle_number" json:"cycleNumber"`
	FromStage      Stage          `db:"from_stage" json:"fromStage"`
	ToStage        Stage          `db:"to_stage" json:"toStage"`
	TransitionedAt time.Time      `db:"transitioned_at" json:"transitionedAt"`
	TransitionedBy *id.ID         `db:"transitioned_by_user_id" json:"transitionedByUserId,omitempty"`
	Method         string         `db:"method" json:"method"`
	Metadata       map[string]any `db:"metadata" json:"metadata,omitempty"`
}
