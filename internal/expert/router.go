package expert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/expertline/expertline/pkg/provider/llm"
	"github.com/expertline/expertline/pkg/types"
)

const (
	// historyExcerptLimit bounds how many recent messages the router sees.
	historyExcerptLimit = 6

	routerTemperature = 0.3
)

// DefaultExpert is the absorbing fallback persona. Routing never fails: any
// router error resolves to this expert so the call can proceed.
func DefaultExpert() types.Expert {
	return types.Expert{
		ID:             "martin-fowler",
		Name:           "Martin Fowler",
		Title:          "Author and Chief Scientist at Thoughtworks",
		ExpertiseAreas: []string{"software architecture", "design patterns", "refactoring"},
		Reasoning:      "Default expert for general software engineering questions",
		Gender:         types.GenderMale,
	}
}

// Router selects the best expert persona for a question using an LLM in JSON
// mode.
type Router struct {
	llm llm.Provider
}

// NewRouter creates a Router backed by the given completion provider.
func NewRouter(p llm.Provider) *Router {
	return &Router{llm: p}
}

// routerResult mirrors the JSON object the routing model is instructed to
// return.
type routerResult struct {
	ExpertName     string   `json:"expertName"`
	ExpertiseAreas []string `json:"expertiseAreas"`
	Reasoning      string   `json:"reasoning"`
	Gender         string   `json:"gender"`
}

// Route picks the expert for question given the session so far. It never
// returns an error: model failures, malformed JSON, and empty names all
// resolve to [DefaultExpert], logged at warn level.
func (r *Router) Route(ctx context.Context, question string, sess *types.Session) types.Expert {
	expert, err := r.route(ctx, question, sess)
	if err != nil {
		slog.WarnContext(ctx, "expert routing failed, using default expert", "error", err)
		return DefaultExpert()
	}
	return expert
}

func (r *Router) route(ctx context.Context, question string, sess *types.Session) (types.Expert, error) {
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: routerSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildRouterPrompt(question, sess)},
		},
		Temperature:  routerTemperature,
		JSONResponse: true,
	})
	if err != nil {
		return types.Expert{}, fmt.Errorf("route completion: %w", err)
	}

	var result routerResult
	if err := json.Unmarshal([]byte(resp.Content), &result); err != nil {
		return types.Expert{}, fmt.Errorf("parse router response: %w", err)
	}

	name := strings.TrimSpace(result.ExpertName)
	if name == "" {
		return types.Expert{}, fmt.Errorf("router returned empty expert name")
	}

	areas := make([]string, 0, len(result.ExpertiseAreas))
	for _, a := range result.ExpertiseAreas {
		if a = strings.TrimSpace(a); a != "" {
			areas = append(areas, a)
		}
	}
	if len(areas) == 0 {
		areas = []string{"software engineering"}
	}

	reasoning := strings.TrimSpace(result.Reasoning)
	if reasoning == "" {
		reasoning = "Expert selected based on routing heuristics."
	}

	return types.Expert{
		ID:             slugify(name),
		Name:           name,
		ExpertiseAreas: areas,
		Reasoning:      reasoning,
		Gender:         types.ParseGender(result.Gender),
	}, nil
}

// buildRouterPrompt assembles the user prompt: recent history, current
// expert, and the new question.
func buildRouterPrompt(question string, sess *types.Session) string {
	historySection := "No conversation history yet."
	if excerpt := historyExcerpt(sess); excerpt != "" {
		historySection = "Conversation history:\n" + excerpt
	}

	expertLine := "No expert is currently assigned."
	if sess != nil && sess.Expert != nil {
		expertLine = "Current expert: " + sess.Expert.Name
	}

	return historySection + "\n\n" + expertLine + "\n\nCurrent question: " + question
}

// historyExcerpt renders the most recent messages as "Role (Expert): text"
// lines, collapsing internal whitespace.
func historyExcerpt(sess *types.Session) string {
	if sess == nil || len(sess.History) == 0 {
		return ""
	}
	history := sess.History
	if len(history) > historyExcerptLimit {
		history = history[len(history)-historyExcerptLimit:]
	}

	lines := make([]string, 0, len(history))
	for _, m := range history {
		label := roleLabel(m.Role)
		if m.ExpertName != "" {
			label += " (" + m.ExpertName + ")"
		}
		text := strings.Join(strings.Fields(m.Content), " ")
		lines = append(lines, label+": "+text)
	}
	return strings.Join(lines, "\n")
}

func roleLabel(r types.Role) string {
	switch r {
	case types.RoleUser:
		return "User"
	case types.RoleExpert:
		return "Expert"
	case types.RoleAssistant:
		return "Assistant"
	default:
		return "System"
	}
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a stable expert ID from the expert's name.
func slugify(name string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}
