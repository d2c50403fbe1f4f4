package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/riverwatch/riverwatch/internal/model"
)

// Completer is the narrow capability LLMSummariser needs from internal/llm.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMSummariser is the optional, explicitly out-of-core Summariser
// variant (spec.md §1, §9). It is wired only when
// config.ComposeConfig.Summariser == "llm"; TemplateSummariser remains
// the required default.
type LLMSummariser struct {
	completer Completer
}

// NewLLMSummariser builds an LLMSummariser.
func NewLLMSummariser(completer Completer) *LLMSummariser {
	return &LLMSummariser{completer: completer}
}

func (s *LLMSummariser) Summarise(cluster model.Cluster, permits []model.Permit, rainfall model.RainfallSummary) (string, error) {
	prompt := buildPrompt(cluster, permits, rainfall)
	text, err := s.completer.Complete(context.Background(), prompt)
	if err != nil {
		return "", fmt.Errorf("llm summariser: %w", err)
	}
	text = strings.TrimSpace(text)
	if len(text) > 600 {
		text = text[:597] + "..."
	}
	return text, nil
}

func buildPrompt(cluster model.Cluster, permits []model.Permit, rainfall model.RainfallSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a single paragraph under 600 characters summarising a %s incident across stations %v.\n", cluster.SourceKind, cluster.StationIDs())
	fmt.Fprintf(&b, "Peak value %.2f, average %.2f, threshold %.2f.\n", peakValue(cluster.Members), averageValue(cluster.Members), cluster.Members[0].Threshold)
	fmt.Fprintf(&b, "Rainfall: %s, total %.1fmm across %d gauges.\n", rainfall.Category, rainfall.TotalMM, rainfall.GaugeCount)
	fmt.Fprintf(&b, "Permits nearby: %d.\n", len(permits))
	return b.String()
}
