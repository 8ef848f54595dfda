package directory

import (
	"context"
	"time"
)

// AssistantUserID is the roster id of the built-in assistant profile.
const AssistantUserID = "coach-mesh"

// NewSeededStore returns a store preloaded with the demo roster. The
// assistant entry carries the display name the loop guard matches on.
func NewSeededStore(botDisplayName string) *Store {
	s := NewStore()
	now := time.Now().UTC()
	seed := []User{
		{ID: AssistantUserID, DisplayName: botDisplayName, Role: RoleAssistant, AccentColor: "#7c3aed", Presence: "online"},
		{ID: "ava", DisplayName: "Ava Chen", Role: RoleHuman, AccentColor: "#0ea5e9", Presence: "online"},
		{ID: "marcus", DisplayName: "Marcus Reed", Role: RoleHuman, AccentColor: "#f97316", Presence: "away"},
		{ID: "priya", DisplayName: "Priya Nair", Role: RoleHuman, AccentColor: "#22c55e", Presence: "online"},
		{ID: "tomas", DisplayName: "Tomas Alvarez", Role: RoleHuman, AccentColor: "#ef4444", Presence: "offline"},
	}
	for _, u := range seed {
		u.CreatedAt = now
		u.LastSeenAt = now
		_ = s.SaveUser(context.Background(), u)
	}
	return s
}
