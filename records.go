package main

import (
	"context"
)

const maxMultiAttachments = 10

// RecordStore creates one record and returns the ID the store assigned.
type RecordStore interface {
	CreateRecord(ctx context.Context, baseID, tableID string, fields map[string]interface{}) (string, error)
}

type recordInput struct {
	Text        string
	Assignee    string
	Attachments []AttachmentRef
}

// buildRecord assembles the field map for a rule. It returns the number of
// attachments that did not fit the destination.
func buildRecord(rule DestinationRule, in recordInput) (OutboundRecord, int) {
	fields := map[string]interface{}{
		rule.Field: in.Text,
	}
	if status := rule.Status(); status != "" {
		fields[rule.StatusField] = status
	}
	if rule.Severity != "" {
		fields[rule.SeverityField] = string(rule.Severity)
	}
	if in.Assignee != "" {
		fields[rule.AssigneeField] = in.Assignee
	}

	dropped := 0
	if len(in.Attachments) > 0 {
		if rule.MultiAttachmentField {
			kept := in.Attachments
			if len(kept) > maxMultiAttachments {
				dropped = len(kept) - maxMultiAttachments
				kept = kept[:maxMultiAttachments]
			}
			fields[rule.AttachmentField] = append([]AttachmentRef(nil), kept...)
		} else {
			for i, a := range in.Attachments {
				if i >= len(rule.AttachmentFields) {
					dropped = len(in.Attachments) - len(rule.AttachmentFields)
					break
				}
				fields[rule.AttachmentFields[i]] = []AttachmentRef{a}
			}
		}
	}
	if dropped > 0 {
		Info("Dropped %d of %d attachments for :%s: (destination holds fewer)", dropped, len(in.Attachments), rule.Emoji)
	}

	return OutboundRecord{
		BaseID:  rule.BaseID,
		TableID: rule.TableID,
		Fields:  fields,
	}, dropped
}

// preview shortens text for log lines to at most 100 runes.
func preview(text string) string {
	const limit = 100
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-3]) + "..."
}
