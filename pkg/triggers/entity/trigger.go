// Package entity implements the configuration-free triggers that fire on event type alone:
// profile_created, document_uploaded and document_rejected.
package entity

import (
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
)

type always struct{}

func (always) Matches(protocol.TriggerPayload) bool {
	return true
}

// TriggerFactory builds the unconditional condition for one trigger type.
type TriggerFactory struct {
	triggerType models.TriggerType
	description string
}

func NewTriggerFactory(triggerType models.TriggerType, description string) *TriggerFactory {
	return &TriggerFactory{triggerType: triggerType, description: description}
}

func NewProfileCreatedFactory() *TriggerFactory {
	return NewTriggerFactory(models.TriggerProfileCreated, "Fires when a profile is created")
}

func NewDocumentUploadedFactory() *TriggerFactory {
	return NewTriggerFactory(models.TriggerDocumentUploaded, "Fires when a document is uploaded")
}

func NewDocumentRejectedFactory() *TriggerFactory {
	return NewTriggerFactory(models.TriggerDocumentRejected, "Fires when a document is rejected")
}

func (f *TriggerFactory) ID() models.TriggerType {
	return f.triggerType
}

func (f *TriggerFactory) Description() string {
	return f.description
}

func (f *TriggerFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"description": f.description + ". No configuration.",
	}
}

func (f *TriggerFactory) Create(map[string]any) (protocol.TriggerCondition, error) {
	return always{}, nil
}
