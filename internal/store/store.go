package store

import (
	"time"

	"driverstatus/internal/model"
)

// Store is the process-local state shared by the API and the dispatcher.
// Nothing here survives a restart.
type Store interface {
	// Snapshot
	ReplaceSnapshot(snap model.Snapshot, at time.Time) int
	Snapshot() (model.Snapshot, time.Time, bool)
	FindMovement(plate string) (model.Movement, error)
	MovementsByPlate() map[string][]model.Movement

	// Manual overrides
	SetManualMessage(plate, text string)
	ClearManualMessage(plate string) bool
	ManualMessage(plate string) string

	// Notification cache
	LastStatusKey(plate string) (string, bool)
	SetLastStatusKey(plate, key string)

	// Subscriptions
	Subscribe(sub model.Subscription) (model.Subscription, int)
	Subscriptions(plate string) []model.Subscription
	RemoveSubscription(plate, id string) bool
	SubscriptionCount() int
}
