// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/cadence/pkg/actions/createtask"
	"github.com/dukex/cadence/pkg/actions/delay"
	"github.com/dukex/cadence/pkg/actions/sendmessage"
	"github.com/dukex/cadence/pkg/actions/updatestatus"
	"github.com/dukex/cadence/pkg/registry"
	"github.com/dukex/cadence/pkg/triggers/entity"
	"github.com/dukex/cadence/pkg/triggers/statuschanged"
	"github.com/dukex/cadence/pkg/triggers/threshold"
)

func registerNativeActions(reg *registry.Registry) {
	reg.RegisterAction(createtask.NewActionFactory())
	reg.RegisterAction(sendmessage.NewMessageFactory())
	reg.RegisterAction(sendmessage.NewEmailFactory())
	reg.RegisterAction(updatestatus.NewActionFactory())
	reg.RegisterAction(delay.NewActionFactory())
}

func registerNativeTriggers(reg *registry.Registry) {
	reg.RegisterTrigger(entity.NewProfileCreatedFactory())
	reg.RegisterTrigger(threshold.NewTriggerFactory())
	reg.RegisterTrigger(statuschanged.NewTriggerFactory())
	reg.RegisterTrigger(entity.NewDocumentUploadedFactory())
	reg.RegisterTrigger(entity.NewDocumentRejectedFactory())
}

// NewRegistry returns a registry holding the built-in trigger and action vocabularies.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeTriggers(reg)
	registerNativeActions(reg)

	return reg
}
