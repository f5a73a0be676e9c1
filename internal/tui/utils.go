package tui

import (
	"fmt"
	"time"

	"codeberg.org/collabkit/engine/internal/collab"
)

const (
	statsTimeout         = 10 * time.Second
	presenceTickInterval = time.Second

	// retained feed lines; older lines scroll out
	feedCapacity = 200

	// fixed width of the collaborator roster panel
	rosterWidth = 32
)

// renders one retained activity item as a feed line
func formatActivity(item collab.ActivityItem) string {
	who := item.CollaboratorID
	when := item.Timestamp.Format("15:04:05")

	switch item.Action {
	case collab.ActionSessionCreated:
		return fmt.Sprintf("%s %s created the session", when, who)
	case collab.ActionSessionEnded:
		return fmt.Sprintf("%s session ended", when)
	case collab.ActionUserJoined:
		return fmt.Sprintf("%s %s joined", when, who)
	case collab.ActionUserLeft:
		return fmt.Sprintf("%s %s left", when, who)
	case collab.ActionResourceChanged:
		return fmt.Sprintf("%s %s changed %s", when, who, item.Metadata["resource_id"])
	case collab.ActionUserInvited:
		return fmt.Sprintf("%s %s invited %s", when, who, item.Metadata["invitee_email"])
	default:
		return fmt.Sprintf("%s %s %s", when, who, item.Action)
	}
}

// renders one live event as a feed line. ephemeral cursor and typing events
// return "" since the roster panel already shows them
func formatEvent(event collab.Event) string {
	when := event.Timestamp.Format("15:04:05")

	switch event.Type {
	case collab.EventSessionCreated:
		return fmt.Sprintf("%s %s created the session", when, event.ActorID)
	case collab.EventUserJoined:
		name := event.ActorID
		if event.Member != nil && event.Member.DisplayName != "" {
			name = event.Member.DisplayName
		}
		return fmt.Sprintf("%s %s joined", when, name)
	case collab.EventUserLeft:
		return fmt.Sprintf("%s %s left", when, event.ActorID)
	case collab.EventResourceChanged:
		if event.Resource != nil {
			return fmt.Sprintf("%s %s changed %s (%s)", when, event.ActorID, event.Resource.ResourceID, event.Resource.ChangeType)
		}
		return fmt.Sprintf("%s %s changed a resource", when, event.ActorID)
	case collab.EventUserInvited:
		if event.Invite != nil {
			return fmt.Sprintf("%s %s invited %s", when, event.Invite.InviterID, event.Invite.Email)
		}
		return fmt.Sprintf("%s %s sent an invite", when, event.ActorID)
	default:
		return ""
	}
}

// shortens a uuid-ish id for headers
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, limit int) string {
	if limit <= 3 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
