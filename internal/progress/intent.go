package progress

import "github.com/xkilldash9x/dialtest-cli/api/schemas"

// IntentFor adapts a classification into the legacy intent vocabulary the
// flow-state machine consumes. Terminal states win over everything else;
// after that the first recognized data field decides, then the confirmation
// subject, then the category.
func IntentFor(res schemas.ClassificationResult) schemas.Intent {
	switch res.TerminalState {
	case schemas.TerminalBookingConfirmed:
		return schemas.IntentConfirmingBooking
	case schemas.TerminalTransferInitiated:
		return schemas.IntentInitiatingTransfer
	case schemas.TerminalConversationEnded:
		return schemas.IntentSayingGoodbye
	}

	for _, field := range res.DataFields {
		if intent, ok := intentByField[field]; ok {
			return intent
		}
	}

	if res.Category == schemas.CategoryConfirmOrDeny {
		if intent, ok := intentBySubject[res.ConfirmationSubject]; ok {
			return intent
		}
	}

	switch res.Category {
	case schemas.CategorySelectFromOptions, schemas.CategoryExpressPreference:
		return schemas.IntentOfferingSlots
	case schemas.CategoryAcknowledge:
		return schemas.IntentGreeting
	}
	return schemas.IntentUnknown
}

var intentByField = map[schemas.DataField]schemas.Intent{
	schemas.FieldCallerName:        schemas.IntentAskingParentName,
	schemas.FieldCallerPhone:       schemas.IntentAskingParentPhone,
	schemas.FieldCallerEmail:       schemas.IntentAskingParentEmail,
	schemas.FieldChildName:         schemas.IntentAskingChildName,
	schemas.FieldChildDOB:          schemas.IntentAskingChildDOB,
	schemas.FieldChildAge:          schemas.IntentAskingChildDOB,
	schemas.FieldInsuranceProvider: schemas.IntentAskingInsurance,
	schemas.FieldInsuranceID:       schemas.IntentAskingInsurance,
	schemas.FieldCardReminder:      schemas.IntentAskingInsurance,
	schemas.FieldSpecialNeeds:      schemas.IntentAskingSpecialNeeds,
	schemas.FieldNewPatient:        schemas.IntentAskingHistory,
	schemas.FieldReasonForVisit:    schemas.IntentAskingHistory,
	schemas.FieldAppointmentDate:   schemas.IntentOfferingSlots,
	schemas.FieldAppointmentTime:   schemas.IntentOfferingSlots,
	schemas.FieldPreferredDay:      schemas.IntentOfferingSlots,
	schemas.FieldPreferredTime:     schemas.IntentOfferingSlots,
	schemas.FieldLocation:          schemas.IntentOfferingSlots,
}

var intentBySubject = map[schemas.ConfirmationSubject]schemas.Intent{
	schemas.SubjectBooking:           schemas.IntentConfirmingBooking,
	schemas.SubjectWantsAddress:      schemas.IntentConfirmingBooking,
	schemas.SubjectAnythingElse:      schemas.IntentConfirmingBooking,
	schemas.SubjectPreviousVisit:     schemas.IntentAskingHistory,
	schemas.SubjectPreviousTreatment: schemas.IntentAskingHistory,
	schemas.SubjectSpecialNeeds:      schemas.IntentAskingSpecialNeeds,
	schemas.SubjectCallScope:         schemas.IntentGreeting,
	schemas.SubjectSchedulingIntent:  schemas.IntentGreeting,
}

// flowByIntent is the fixed intent to flow-state lookup. An intent with no
// entry leaves the flow state unchanged.
var flowByIntent = map[schemas.Intent]schemas.FlowState{
	schemas.IntentGreeting:           schemas.FlowGreeting,
	schemas.IntentAskingParentName:   schemas.FlowCollectingParent,
	schemas.IntentAskingParentPhone:  schemas.FlowCollectingParent,
	schemas.IntentAskingParentEmail:  schemas.FlowCollectingParent,
	schemas.IntentAskingChildName:    schemas.FlowCollectingChild,
	schemas.IntentAskingChildDOB:     schemas.FlowCollectingChild,
	schemas.IntentAskingHistory:      schemas.FlowCollectingHistory,
	schemas.IntentAskingSpecialNeeds: schemas.FlowCollectingHistory,
	schemas.IntentAskingInsurance:    schemas.FlowCollectingInsurance,
	schemas.IntentOfferingSlots:      schemas.FlowScheduling,
	schemas.IntentConfirmingBooking:  schemas.FlowConfirmation,
	schemas.IntentInitiatingTransfer: schemas.FlowTransfer,
	schemas.IntentSayingGoodbye:      schemas.FlowEnded,
}

// fieldByIntent maps an asking intent onto the collectable field the caller's
// reply is expected to provide.
var fieldByIntent = map[schemas.Intent]schemas.DataField{
	schemas.IntentAskingParentName:   schemas.FieldCallerName,
	schemas.IntentAskingParentPhone:  schemas.FieldCallerPhone,
	schemas.IntentAskingParentEmail:  schemas.FieldCallerEmail,
	schemas.IntentAskingChildName:    schemas.FieldChildName,
	schemas.IntentAskingChildDOB:     schemas.FieldChildDOB,
	schemas.IntentAskingInsurance:    schemas.FieldInsuranceProvider,
	schemas.IntentAskingSpecialNeeds: schemas.FieldSpecialNeeds,
	schemas.IntentAskingHistory:      schemas.FieldReasonForVisit,
	schemas.IntentOfferingSlots:      schemas.FieldAppointmentTime,
}
