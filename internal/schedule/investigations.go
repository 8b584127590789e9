// Package schedule decides, once per trainee message, which investigation
// results are due and which hidden trigger (if any) fires.
package schedule

import (
	"sort"
	"strings"

	"github.com/clinsim/backend/internal/models"
)

// Order is one requested investigation.
type Order struct {
	Key       string `json:"key"`
	Result    string `json:"-"`
	ReadyAt   int    `json:"ready_at"`
	Delivered bool   `json:"delivered"`
}

// Plan tracks investigation orders for one session.
type Plan struct {
	orders map[string]*Order
}

func NewPlan() *Plan {
	return &Plan{orders: make(map[string]*Order)}
}

// Schedule orders every investigation whose request keywords appear in the
// trainee message. Investigations already ordered or delivered are left
// alone. It returns the keys that were newly scheduled.
func (p *Plan) Schedule(investigations map[string]models.Investigation, message string, turn int) []string {
	text := strings.ToLower(message)
	var scheduled []string

	for _, key := range sortedKeys(investigations) {
		if _, exists := p.orders[key]; exists {
			continue
		}
		inv := investigations[key]
		if !containsAny(text, inv.RequestKeywords) {
			continue
		}
		p.orders[key] = &Order{Key: key, Result: inv.Result, ReadyAt: turn + inv.DelayTurns}
		scheduled = append(scheduled, key)
	}
	return scheduled
}

// Deliver appends every due result to reply in ascending ready-at order, ties
// broken by key, and marks them delivered. With nothing due, reply is
// returned unchanged and no order is touched.
func (p *Plan) Deliver(reply string, turn int) (string, []Order) {
	var due []*Order
	for _, o := range p.orders {
		if !o.Delivered && o.ReadyAt <= turn {
			due = append(due, o)
		}
	}
	if len(due) == 0 {
		return reply, nil
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].ReadyAt != due[j].ReadyAt {
			return due[i].ReadyAt < due[j].ReadyAt
		}
		return due[i].Key < due[j].Key
	})

	var b strings.Builder
	b.WriteString(reply)
	delivered := make([]Order, 0, len(due))
	for _, o := range due {
		b.WriteString("\n\n[Result: ")
		b.WriteString(o.Key)
		b.WriteString("] ")
		b.WriteString(o.Result)
		o.Delivered = true
		delivered = append(delivered, *o)
	}
	return b.String(), delivered
}

// Pending returns the undelivered orders sorted by ready-at.
func (p *Plan) Pending() []Order {
	var out []Order
	for _, o := range p.orders {
		if !o.Delivered {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReadyAt != out[j].ReadyAt {
			return out[i].ReadyAt < out[j].ReadyAt
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Ordered reports whether key was ever scheduled.
func (p *Plan) Ordered(key string) bool {
	_, ok := p.orders[key]
	return ok
}

func sortedKeys(m map[string]models.Investigation) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// containsAny reports whether lowered text contains any keyword,
// case-insensitively. Blank keywords never match.
func containsAny(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
