package input

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/time/rate"

	"github.com/deskbridge/deskbridge/internal/audit"
	"github.com/deskbridge/deskbridge/internal/protocol"
)

// Rejection reasons surfaced in audit records.
const (
	ReasonMalformed   = "malformed event"
	ReasonRateLimited = "rate limit exceeded"
	ReasonBadText     = "text contains control characters"
	ReasonDenyList    = "text matches deny-list"
)

var timeNow = time.Now

// textDenyList holds substrings never allowed in text forwarded to the
// remote desktop. The composed text is ultimately typed into a machine
// that may run arbitrary applications.
var textDenyList = []string{
	"\x1b[", // ANSI escape sequences
	"\x9b",  // CSI
}

// ValidatorConfig tunes the validator.
type ValidatorConfig struct {
	MaxEventsPerSecond int // per modality
	Burst              int
}

// DefaultValidatorConfig returns the stock tuning.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxEventsPerSecond: 240,
		Burst:              60,
	}
}

// Validator is the single security choke-point for input before it
// reaches transport: structural checks, per-modality rate limiting,
// text sanitization, and one audit record for every processed event.
type Validator struct {
	limiters map[protocol.EventType]*rate.Limiter
	sink     audit.Sink
}

// NewValidator builds a validator writing audit records to sink.
func NewValidator(cfg ValidatorConfig, sink audit.Sink) *Validator {
	if sink == nil {
		sink = audit.Nop{}
	}
	limit := rate.Limit(cfg.MaxEventsPerSecond)
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.MaxEventsPerSecond
	}
	return &Validator{
		limiters: map[protocol.EventType]*rate.Limiter{
			protocol.EventMouse:    rate.NewLimiter(limit, burst),
			protocol.EventKeyboard: rate.NewLimiter(limit, burst),
			protocol.EventTouch:    rate.NewLimiter(limit, burst),
		},
		sink: sink,
	}
}

// Validate checks one event. Rejection is never fatal: the event is
// dropped and logged, the pipeline continues.
func (v *Validator) Validate(actor protocol.Actor, event *protocol.InputEvent) (ok bool, reason string) {
	if err := event.Validate(); err != nil {
		v.record(actor, "invalid", audit.OutcomeRejected, ReasonMalformed)
		return false, ReasonMalformed
	}

	if limiter, found := v.limiters[event.Type]; found && !limiter.Allow() {
		v.record(actor, event.Summary(), audit.OutcomeRejected, ReasonRateLimited)
		return false, ReasonRateLimited
	}

	if event.Keyboard != nil {
		if reason := checkText(event.Keyboard.Text); reason != "" {
			v.record(actor, event.Summary(), audit.OutcomeRejected, reason)
			return false, reason
		}
	}

	v.record(actor, event.Summary(), audit.OutcomeAccepted, "")
	return true, ""
}

func (v *Validator) record(actor protocol.Actor, action, outcome, detail string) {
	v.sink.Append(audit.Record{
		Actor:     string(actor),
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: timeNow(),
	})
}

// checkText rejects control characters and deny-listed patterns in
// composed/input text. Newline and tab are legitimate typed input.
func checkText(text string) string {
	if text == "" {
		return ""
	}
	for _, deny := range textDenyList {
		if strings.Contains(text, deny) {
			return ReasonDenyList
		}
	}
	for _, r := range text {
		if r == '\n' || r == '\t' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return ReasonBadText
		}
	}
	return ""
}
