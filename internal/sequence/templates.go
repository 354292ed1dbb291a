package sequence

import (
	"time"

	"github.com/ronappleton/caseflow/internal/faults"
	"github.com/ronappleton/caseflow/internal/ids"
	"github.com/ronappleton/caseflow/internal/notify"
)

type templateStep struct {
	Channel   notify.Channel
	Template  string
	DelayDays int
}

// Built-in outreach cadences, escalating in tone. Delays are days from
// sequence start.
var templates = map[string][]templateStep{
	"friendly": {
		{Channel: notify.ChannelEmail, Template: "friendly_reminder_1", DelayDays: 0},
		{Channel: notify.ChannelEmail, Template: "friendly_reminder_2", DelayDays: 7},
		{Channel: notify.ChannelSMS, Template: "friendly_sms", DelayDays: 14},
	},
	"formal": {
		{Channel: notify.ChannelEmail, Template: "formal_demand_1", DelayDays: 0},
		{Channel: notify.ChannelSMS, Template: "formal_sms", DelayDays: 5},
		{Channel: notify.ChannelCall, Template: "formal_call_script", DelayDays: 10},
		{Channel: notify.ChannelEmail, Template: "formal_demand_2", DelayDays: 15},
	},
	"legal": {
		{Channel: notify.ChannelEmail, Template: "legal_warning", DelayDays: 0},
		{Channel: notify.ChannelLegalNotice, Template: "legal_notice", DelayDays: 3},
		{Channel: notify.ChannelCall, Template: "legal_call_script", DelayDays: 7},
	},
}

func expandTemplate(name string, start time.Time) ([]Step, error) {
	def, ok := templates[name]
	if !ok {
		return nil, faults.Validation("unknown sequence template %q", name)
	}
	steps := make([]Step, 0, len(def))
	for i, ts := range def {
		steps = append(steps, Step{
			ID:          ids.New("stp"),
			Index:       i,
			Channel:     ts.Channel,
			Template:    ts.Template,
			DelayDays:   ts.DelayDays,
			Status:      StepPending,
			ScheduledAt: start.Add(time.Duration(ts.DelayDays) * 24 * time.Hour),
		})
	}
	return steps, nil
}
