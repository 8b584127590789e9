package schedule

import (
	"strings"

	"github.com/clinsim/backend/internal/models"
)

// Context is what trigger conditions are tested against on one turn.
type Context struct {
	Message         string // current trainee message
	TraineeMessages int    // trainee messages so far, including this one
	PreviousReply   string // the patient message immediately before this one
}

// SelectTrigger returns the index of the single trigger to fire this turn,
// or -1. Among unfired triggers whose condition holds, the highest priority
// wins; ties go to the earliest in the list.
func SelectTrigger(triggers []models.HiddenTrigger, ctx Context) int {
	message := strings.ToLower(ctx.Message)
	previous := strings.ToLower(ctx.PreviousReply)

	best := -1
	for i, t := range triggers {
		if t.Fired || !holds(t, message, previous, ctx.TraineeMessages) {
			continue
		}
		if best < 0 || t.Priority > triggers[best].Priority {
			best = i
		}
	}
	return best
}

func holds(t models.HiddenTrigger, message, previous string, count int) bool {
	switch t.Condition {
	case models.ConditionKeyword:
		return containsAny(message, t.Keywords)
	case models.ConditionMessageCount:
		return count >= t.Threshold
	case models.ConditionAfterPatientKeyword:
		return previous != "" && containsAny(previous, t.Keywords)
	}
	return false
}

// Fire selects and marks the trigger for this turn. It returns nil when no
// condition holds. A fired trigger is never reconsidered.
func Fire(triggers []models.HiddenTrigger, ctx Context) *models.HiddenTrigger {
	i := SelectTrigger(triggers, ctx)
	if i < 0 {
		return nil
	}
	triggers[i].Fired = true
	fired := triggers[i]
	return &fired
}

// ComposePersona builds the system prompt for the next patient reply. The
// fired trigger's reveal text is prepended as a system instruction and its
// addendum appended.
func ComposePersona(base string, fired *models.HiddenTrigger) string {
	if fired == nil {
		return base
	}
	var b strings.Builder
	if reveal := strings.TrimSpace(fired.RevealText); reveal != "" {
		b.WriteString("[SYSTEM TRIGGER: ")
		b.WriteString(reveal)
		b.WriteString("] ")
	}
	b.WriteString(base)
	if add := strings.TrimSpace(fired.PromptAddendum); add != "" {
		b.WriteString(" [EXTRA INSTRUCTION: ")
		b.WriteString(add)
		b.WriteString("]")
	}
	return b.String()
}
