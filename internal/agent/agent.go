// Package agent defines the synthetic participants of a dialogue session:
// their identity, epistemic lens, trait vector, and the pure mappings from
// traits to sampling parameters and prompt framing.
package agent

import (
	"fmt"
	"strings"

	"github.com/fieldline/trajet/internal/backend"
	"github.com/fieldline/trajet/internal/config"
)

// Reserved speaker ids that are never agents in the roster.
const (
	HumanID  = "human"
	SystemID = "system"
)

// Traits is the five-dimensional personality vector, each axis in [0,1].
type Traits struct {
	Curiosity     float64 `json:"curiosity"`
	Agreeableness float64 `json:"agreeableness"`
	Assertiveness float64 `json:"assertiveness"`
	Abstraction   float64 `json:"abstraction"`
	Volatility    float64 `json:"volatility"`
}

// Agent is one synthetic participant. A roster of these is fixed for the
// life of a session.
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Archetype string `json:"archetype"`
	Lens      string `json:"lens"` // epistemic-lens description
	Traits    Traits `json:"traits"`
}

// FromConfig converts a config roster into agents.
func FromConfig(cfgs []config.AgentConfig) []Agent {
	agents := make([]Agent, 0, len(cfgs))
	for _, c := range cfgs {
		agents = append(agents, Agent{
			ID:        c.ID,
			Name:      c.Name,
			Archetype: c.Archetype,
			Lens:      c.Lens,
			Traits: Traits{
				Curiosity:     c.Traits.Curiosity,
				Agreeableness: c.Traits.Agreeableness,
				Assertiveness: c.Traits.Assertiveness,
				Abstraction:   c.Traits.Abstraction,
				Volatility:    c.Traits.Volatility,
			},
		})
	}
	return agents
}

// Sampling maps the trait vector to generation sampling parameters. The
// mapping is pure: the same traits always yield the same parameters.
// Volatility widens the sampling distribution; abstraction earns a longer
// token budget for more discursive speakers.
func (t Traits) Sampling() backend.SamplingParams {
	return backend.SamplingParams{
		Temperature: 0.4 + 0.8*t.Volatility,
		TopP:        0.85 + 0.14*t.Curiosity,
		MaxTokens:   180 + int(220*t.Abstraction),
	}
}

// framing returns a short textual description of how the trait vector
// should color the agent's speech.
func (t Traits) framing() string {
	var parts []string
	if t.Curiosity >= 0.6 {
		parts = append(parts, "ask probing questions")
	}
	if t.Agreeableness >= 0.6 {
		parts = append(parts, "look for common ground")
	} else if t.Agreeableness <= 0.3 {
		parts = append(parts, "do not soften disagreement")
	}
	if t.Assertiveness >= 0.6 {
		parts = append(parts, "take firm positions")
	}
	if t.Abstraction >= 0.6 {
		parts = append(parts, "reach for general principles")
	} else if t.Abstraction <= 0.3 {
		parts = append(parts, "stay concrete and grounded in examples")
	}
	if t.Volatility >= 0.6 {
		parts = append(parts, "let your register shift with the conversation")
	}
	if len(parts) == 0 {
		return "speak plainly"
	}
	return strings.Join(parts, "; ")
}

// SystemPrompt builds the persona framing injected into every generation
// request for this agent.
func (a Agent) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s", a.Name)
	if a.Archetype != "" {
		fmt.Fprintf(&b, ", the %s", a.Archetype)
	}
	b.WriteString(", one voice in a multi-party dialogue.\n")
	if a.Lens != "" {
		fmt.Fprintf(&b, "Your epistemic lens: %s\n", a.Lens)
	}
	fmt.Fprintf(&b, "In conversation you %s.\n", a.Traits.framing())
	b.WriteString("Respond with a single contribution to the dialogue, in your own voice. Do not narrate or prefix your name.")
	return b.String()
}
