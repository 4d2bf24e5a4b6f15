package expert

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/expertline/expertline/pkg/provider/llm"
	llmmock "github.com/expertline/expertline/pkg/provider/llm/mock"
	"github.com/expertline/expertline/pkg/types"
)

func TestRoute_ParsesRouterResponse(t *testing.T) {
	t.Parallel()

	p := llmmock.New()
	p.CompleteResult = &llm.CompletionResponse{
		Content: `{
			"expertName": "Barbara Liskov",
			"expertiseAreas": ["distributed systems", "programming languages", " "],
			"reasoning": "Pioneered data abstraction and the substitution principle.",
			"gender": "female"
		}`,
	}

	r := NewRouter(p)
	got := r.Route(context.Background(), "What is the Liskov substitution principle?", nil)

	if got.ID != "barbara-liskov" {
		t.Errorf("ID = %q", got.ID)
	}
	if got.Name != "Barbara Liskov" {
		t.Errorf("Name = %q", got.Name)
	}
	if len(got.ExpertiseAreas) != 2 {
		t.Errorf("ExpertiseAreas = %v, want blank entries dropped", got.ExpertiseAreas)
	}
	if got.Gender != types.GenderFemale {
		t.Errorf("Gender = %q", got.Gender)
	}

	calls := p.CompleteCalls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if !req.JSONResponse {
		t.Error("router request should ask for JSON response")
	}
	if req.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", req.Temperature)
	}
}

func TestRoute_FallsBackToDefaultExpert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*llmmock.Provider)
	}{
		{
			name: "provider error",
			setup: func(p *llmmock.Provider) {
				p.CompleteErr = errors.New("model unavailable")
			},
		},
		{
			name: "malformed JSON",
			setup: func(p *llmmock.Provider) {
				p.CompleteResult = &llm.CompletionResponse{Content: "not json at all"}
			},
		},
		{
			name: "empty expert name",
			setup: func(p *llmmock.Provider) {
				p.CompleteResult = &llm.CompletionResponse{Content: `{"expertName": "  "}`}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := llmmock.New()
			tc.setup(p)

			got := NewRouter(p).Route(context.Background(), "anything", nil)
			want := DefaultExpert()
			if got.ID != want.ID || got.Name != want.Name || got.Gender != want.Gender {
				t.Errorf("got %+v, want default expert", got)
			}
		})
	}
}

func TestRoute_DefaultsMissingFields(t *testing.T) {
	t.Parallel()

	p := llmmock.New()
	p.CompleteResult = &llm.CompletionResponse{
		Content: `{"expertName": "Rob Pike", "gender": "robot"}`,
	}

	got := NewRouter(p).Route(context.Background(), "Go concurrency?", nil)

	if len(got.ExpertiseAreas) != 1 || got.ExpertiseAreas[0] != "software engineering" {
		t.Errorf("ExpertiseAreas = %v, want the generic default", got.ExpertiseAreas)
	}
	if got.Reasoning == "" {
		t.Error("Reasoning should get a default")
	}
	if got.Gender != types.GenderUnknown {
		t.Errorf("Gender = %q, want unknown for unrecognised value", got.Gender)
	}
}

func TestBuildRouterPrompt(t *testing.T) {
	t.Parallel()

	t.Run("fresh session", func(t *testing.T) {
		t.Parallel()
		got := buildRouterPrompt("What is TDD?", nil)
		if !strings.Contains(got, "No conversation history yet.") {
			t.Errorf("prompt missing empty-history line:\n%s", got)
		}
		if !strings.Contains(got, "No expert is currently assigned.") {
			t.Errorf("prompt missing no-expert line:\n%s", got)
		}
		if !strings.Contains(got, "Current question: What is TDD?") {
			t.Errorf("prompt missing question:\n%s", got)
		}
	})

	t.Run("with history and expert", func(t *testing.T) {
		t.Parallel()
		sess := &types.Session{
			Expert: &types.Expert{Name: "Kent Beck"},
		}
		for i := 0; i < 8; i++ {
			sess.History = append(sess.History, types.Message{
				Role:    types.RoleUser,
				Content: "question number " + string(rune('0'+i)),
			})
		}
		sess.History = append(sess.History, types.Message{
			Role:       types.RoleExpert,
			ExpertName: "Kent Beck",
			Content:    "Write the  test\n first.",
		})

		got := buildRouterPrompt("And then?", sess)
		if !strings.Contains(got, "Current expert: Kent Beck") {
			t.Errorf("prompt missing current expert:\n%s", got)
		}
		if !strings.Contains(got, "Expert (Kent Beck): Write the test first.") {
			t.Errorf("prompt should collapse whitespace in history:\n%s", got)
		}
		if strings.Contains(got, "question number 0") {
			t.Errorf("prompt should only contain the last %d messages:\n%s", historyExcerptLimit, got)
		}
	})
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Martin Fowler", "martin-fowler"},
		{"Grace Hopper!", "grace-hopper"},
		{"  Donald E. Knuth  ", "donald-e-knuth"},
		{"C++ Creator (Bjarne)", "c-creator-bjarne"},
	}
	for _, tc := range tests {
		if got := slugify(tc.in); got != tc.want {
			t.Errorf("slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
