package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

const RunErrorCodeUserCancelled = "USER_CANCELLED"

// RunStatusTerminal reports whether a status admits no further transition.
func RunStatusTerminal(status string) bool {
	switch status {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// TerminalRunStatuses is the absorbing set of the run state machine.
var TerminalRunStatuses = []string{RunStatusSucceeded, RunStatusFailed, RunStatusCancelled}

// ActiveRunStatuses are the statuses that block a new run for the same meal.
var ActiveRunStatuses = []string{RunStatusQueued, RunStatusRunning}

// AnalysisRun is one attempt to derive nutrition for a meal or ad-hoc text.
type AnalysisRun struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	MealID *uuid.UUID `gorm:"type:uuid;index" json:"meal_id,omitempty"`

	// RunNo is a 1-based sequence per meal; always 1 for ad-hoc text runs.
	RunNo  int    `gorm:"column:run_no;not null" json:"run_no"`
	Status string `gorm:"column:status;not null;index" json:"status"`

	Threshold decimal.Decimal `gorm:"type:numeric(5,4);not null" json:"threshold"`
	Model     string          `gorm:"column:model;not null" json:"model"`

	RetryOfRunID *uuid.UUID `gorm:"type:uuid" json:"retry_of_run_id,omitempty"`

	// Metrics, set only on completion.
	LatencyMS      *int64 `gorm:"column:latency_ms" json:"latency_ms,omitempty"`
	Tokens         *int64 `gorm:"column:tokens" json:"tokens,omitempty"`
	CostMinorUnits *int64 `gorm:"column:cost_minor_units" json:"cost_minor_units,omitempty"`
	CostCurrency   string `gorm:"column:cost_currency" json:"cost_currency,omitempty"`

	ErrorCode    string `gorm:"column:error_code" json:"error_code,omitempty"`
	ErrorMessage string `gorm:"column:error_message" json:"error_message,omitempty"`

	// RawInput is the normalized input payload, immutable once created.
	RawInput datatypes.JSON `gorm:"type:jsonb;column:raw_input" json:"raw_input"`
	// RawResponse stores the provider payload for audit.
	RawResponse datatypes.JSON `gorm:"type:jsonb;column:raw_response" json:"raw_response,omitempty"`

	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (AnalysisRun) TableName() string { return "analysis_run" }

// RunRawInput is the shape persisted in AnalysisRun.RawInput.
type RunRawInput struct {
	MealID    *uuid.UUID `json:"meal_id,omitempty"`
	InputText string     `json:"input_text,omitempty"`
}
