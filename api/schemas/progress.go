package schemas

import "time"

// FlowState is a coarse label for the conversation's current phase.
type FlowState string

const (
	FlowGreeting            FlowState = "greeting"
	FlowCollectingParent    FlowState = "collecting_parent_info"
	FlowCollectingChild     FlowState = "collecting_child_info"
	FlowCollectingHistory   FlowState = "collecting_history"
	FlowCollectingInsurance FlowState = "collecting_insurance"
	FlowScheduling          FlowState = "scheduling"
	FlowBooking             FlowState = "booking"
	FlowConfirmation        FlowState = "confirmation"
	FlowTransfer            FlowState = "transfer"
	FlowEnded               FlowState = "ended"
)

// Intent is the legacy intent vocabulary the progress tracker consumes.
// Classifications are adapted into intents before updating progress.
type Intent string

const (
	IntentGreeting           Intent = "greeting"
	IntentAskingParentName   Intent = "asking_parent_name"
	IntentAskingParentPhone  Intent = "asking_parent_phone"
	IntentAskingParentEmail  Intent = "asking_parent_email"
	IntentAskingChildName    Intent = "asking_child_name"
	IntentAskingChildDOB     Intent = "asking_child_dob"
	IntentAskingHistory      Intent = "asking_history"
	IntentAskingInsurance    Intent = "asking_insurance"
	IntentAskingSpecialNeeds Intent = "asking_special_needs"
	IntentOfferingSlots      Intent = "offering_slots"
	IntentConfirmingBooking  Intent = "confirming_booking"
	IntentInitiatingTransfer Intent = "initiating_transfer"
	IntentSayingGoodbye      Intent = "saying_goodbye"
	IntentUnknown            Intent = "unknown"
)

// CollectedField records a datum gathered during the conversation. Turn is
// the first turn the value was provided; later mentions never overwrite it.
type CollectedField struct {
	Field     DataField `json:"field"`
	Value     string    `json:"value"`
	Turn      int       `json:"turn"`
	Confirmed bool      `json:"confirmed"`
}

// IssueType names a conversational problem the progress tracker detects.
type IssueType string

const (
	IssueRepeating     IssueType = "repeating"
	IssueStuck         IssueType = "stuck"
	IssueUnknownIntent IssueType = "unknown_intent"
)

// Issue is one detected problem, reported with a transcript-aligned turn.
type Issue struct {
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	Turn        int       `json:"turn"`
	Description string    `json:"description"`
}

// ProgressSnapshot is the exported view of a conversation's progress state,
// consumed by the goal evaluator and the reporter.
type ProgressSnapshot struct {
	Turn              int                          `json:"turn"`
	FlowState         FlowState                    `json:"flow_state"`
	IntentHistory     []Intent                     `json:"intent_history"`
	CollectedFields   map[DataField]CollectedField `json:"collected_fields"`
	PendingFields     []DataField                  `json:"pending_fields"`
	CompletedGoals    []string                     `json:"completed_goals"`
	FailedGoals       []string                     `json:"failed_goals"`
	Issues            []Issue                      `json:"issues,omitempty"`
	BookingConfirmed  bool                         `json:"booking_confirmed"`
	TransferInitiated bool                         `json:"transfer_initiated"`
	StartedAt         time.Time                    `json:"started_at"`
}

// CollectedValues flattens the snapshot's collected fields into the simple
// map a GoalContext carries.
func (s ProgressSnapshot) CollectedValues() map[DataField]string {
	out := make(map[DataField]string, len(s.CollectedFields))
	for f, c := range s.CollectedFields {
		out[f] = c.Value
	}
	return out
}
