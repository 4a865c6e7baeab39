package conversation

import (
	"regexp"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/textnorm"
)

// State is where a conversation stands in the booking flow.
type State int

const (
	// StateCollecting covers everything before a summary is shown, including a
	// customer abandoning a summary by asking something else.
	StateCollecting State = iota
	// StateSummarySent means the assistant rendered a summary and asked for
	// confirmation.
	StateSummarySent
	// StateConfirmed means the customer affirmed a rendered summary.
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateSummarySent:
		return "summary_sent"
	case StateConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Evaluation is the detector's reading of a transcript.
type Evaluation struct {
	State            State
	SummaryIndex     int
	Summary          string
	ConfirmationText string
	// ConfirmationIndex is the index of the affirming customer message, or -1.
	ConfirmationIndex int
	HasDateReference  bool
	// Suppressed is set when the customer answered affirmatively but the
	// assistant's latest message asked something else and no summary is in
	// context, so the answer cannot be read as a booking confirmation.
	Suppressed bool
}

// Confirmed reports whether the evaluation allows a commit.
func (e Evaluation) Confirmed() bool {
	return e.State == StateConfirmed
}

// affirmatives are matched against folded text.
var affirmatives = []string{
	"sim", "s", "ok", "okay", "confirmo", "confirmar", "confirmado", "pode confirmar",
	"sim, confirmo", "sim confirmo", "sim pode", "pode sim", "isso", "isso mesmo",
	"correto", "esta correto", "ta correto", "certo", "perfeito", "fechado", "combinado",
	"yes", "y", "yep", "confirm", "confirmed", "yes, confirm", "yes confirm",
	"that's correct", "thats correct", "correct", "sure",
}

// Short tokens only count when they are the whole message.
var exactOnly = map[string]bool{"s": true, "y": true, "ok": true, "certo": true, "sure": true}

// Portuguese "no" means "in the", so the English refusal only counts as the
// opening word.
var negations = regexp.MustCompile(`^no\b|\b(nao|not|mas|but|outro|outra|errado|errada|wrong|mudar|trocar|alterar|change|cancela|cancelar|cancel)\b`)

var (
	nameMarkers = []string{"👤", "nome:", "name:"}
	dateMarkers = []string{"📅", "data:", "date:"}
	timeMarkers = []string{"⏰", "🕐", "horario:", "hora:", "time:"}

	confirmationRequests = []string{
		"esta correto", "esta certo", "tudo certo?", "confirma?", "confirmar?", "posso confirmar",
		"podemos confirmar", "responda sim", "responda \"sim\"", "digite sim",
		"is this correct", "is that correct", "reply yes", "can i confirm", "shall i confirm",
	}
)

var numericDateRE = regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`)

// Detector reads the confirmation state out of a transcript.
type Detector struct {
	// window bounds how many assistant messages back a summary may be found.
	window int
}

// NewDetector returns a detector that looks for summaries among the last
// window assistant messages. A non-positive window means 3.
func NewDetector(window int) *Detector {
	if window <= 0 {
		window = 3
	}
	return &Detector{window: window}
}

// Evaluate derives the conversation state from messages in chronological
// order. It is a pure function of its input.
func (d *Detector) Evaluate(messages []Message) Evaluation {
	eval := Evaluation{State: StateCollecting, SummaryIndex: -1, ConfirmationIndex: -1}

	lastAssistant, lastCustomer := -1, -1
	for i := len(messages) - 1; i >= 0; i-- {
		switch messages[i].Role {
		case RoleAssistant:
			if lastAssistant < 0 {
				lastAssistant = i
			}
		case RoleCustomer:
			if lastCustomer < 0 {
				lastCustomer = i
			}
		}
		if lastAssistant >= 0 && lastCustomer >= 0 {
			break
		}
	}

	seen := 0
	for i := lastAssistant; i >= 0 && seen < d.window; i-- {
		if messages[i].Role != RoleAssistant {
			continue
		}
		seen++
		if IsSummary(messages[i].Content) {
			eval.SummaryIndex = i
			eval.Summary = messages[i].Content
			break
		}
	}

	answered := lastCustomer > lastAssistant && lastAssistant >= 0
	affirmed := answered && IsAffirmative(messages[lastCustomer].Content)

	switch {
	case eval.SummaryIndex < 0:
		// No summary in context: an affirmative answers whatever was asked.
		if affirmed && asksQuestion(messages[lastAssistant].Content) {
			eval.Suppressed = true
		}
		return eval
	case eval.SummaryIndex != lastAssistant:
		latest := messages[lastAssistant].Content
		if asksQuestion(latest) && !isConfirmationRequest(latest) {
			if affirmed {
				eval.Suppressed = true
			}
			return eval
		}
	}

	eval.State = StateSummarySent
	if !affirmed {
		return eval
	}

	eval.State = StateConfirmed
	eval.ConfirmationIndex = lastCustomer
	eval.ConfirmationText = messages[lastCustomer].Content
	eval.HasDateReference = hasDateReference(messages)
	return eval
}

// IsSummary reports whether text carries labeled name, date and time fields
// plus a request to confirm them.
func IsSummary(text string) bool {
	folded := textnorm.Fold(text)
	return containsAny(folded, nameMarkers) &&
		containsAny(folded, dateMarkers) &&
		containsAny(folded, timeMarkers) &&
		isConfirmationRequest(text)
}

// IsAffirmative reports whether a customer message confirms. Matches are
// exact or whole-phrase; any negation or change request disqualifies.
func IsAffirmative(text string) bool {
	folded := strings.Trim(textnorm.Fold(text), " .!?,;:👍✅")
	if folded == "" {
		return false
	}
	if negations.MatchString(folded) {
		return false
	}
	for _, phrase := range affirmatives {
		if folded == phrase {
			return true
		}
	}
	for _, phrase := range affirmatives {
		if exactOnly[phrase] {
			continue
		}
		if containsPhrase(folded, phrase) {
			return true
		}
	}
	return false
}

func isConfirmationRequest(text string) bool {
	return containsAny(textnorm.Fold(text), confirmationRequests)
}

func asksQuestion(text string) bool {
	return strings.Contains(text, "?")
}

func hasDateReference(messages []Message) bool {
	for _, m := range messages {
		if dates.HasReference(m.Content) || numericDateRE.MatchString(m.Content) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// containsPhrase matches phrase on word boundaries within s.
func containsPhrase(s, phrase string) bool {
	for idx := 0; idx+len(phrase) <= len(s); {
		pos := strings.Index(s[idx:], phrase)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(phrase)
		if isBoundary(s, start-1) && isBoundary(s, end) {
			return true
		}
		idx = start + 1
	}
	return false
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80)
}
