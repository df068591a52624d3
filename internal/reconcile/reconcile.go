// Package reconcile threads a flat message batch into its display form,
// folding reactions onto their targets and attaching reply previews.
package reconcile

import (
	"whatsapp-crm-sync/internal/models"
)

// OutgoingName labels messages sent from this side of the conversation.
var OutgoingName = "You"

// previewLimit caps reply preview bodies, in runes.
const previewLimit = 100

// NameFunc resolves a display name for a counterpart phone or JID. A nil
// resolver or empty result falls back to the record's own sender name.
type NameFunc func(counterpart string) string

// Reconcile produces the display sequence for a batch of canonical messages.
// Input order is the transport's fetch order and is preserved; reactions are
// folded onto their targets and removed from the sequence. The batch is not
// mutated.
func Reconcile(msgs []models.CanonicalMessage, resolve NameFunc) []models.DisplayMessage {
	// Later reactions supersede earlier ones, so a single forward pass
	// overwriting per target leaves the last reaction standing.
	reactions := make(map[string]string)
	byID := make(map[string]models.CanonicalMessage, len(msgs))
	for _, m := range msgs {
		if m.ContentKind == models.ContentReaction {
			if m.ReplyToID != "" {
				reactions[m.ReplyToID] = m.Body
			}
			continue
		}
		byID[m.ID] = m
	}

	out := make([]models.DisplayMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ContentKind == models.ContentReaction {
			continue
		}
		d := models.DisplayMessage{CanonicalMessage: m}
		d.SenderDisplayName = displayName(m, resolve)
		d.ReactionOverlay = reactions[m.ID]
		if m.ReplyToID != "" {
			if target, ok := byID[m.ReplyToID]; ok {
				d.ReplyPreview = &models.ReplyPreview{
					TargetID:   target.ID,
					Body:       truncate(previewBody(target), previewLimit),
					SenderName: displayName(target, resolve),
				}
			}
			// Targets outside the batch stay bare; the reply still renders.
		}
		out = append(out, d)
	}
	return out
}

func displayName(m models.CanonicalMessage, resolve NameFunc) string {
	if m.Direction == models.DirectionOutgoing {
		return OutgoingName
	}
	if resolve != nil {
		if name := resolve(m.Counterpart); name != "" {
			return name
		}
	}
	if m.SenderName != "" {
		return m.SenderName
	}
	return m.Counterpart
}

func previewBody(m models.CanonicalMessage) string {
	if m.IsTemplate() {
		return m.TemplateBody
	}
	return m.Body
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
