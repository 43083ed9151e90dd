package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/structs"
)

type transcriptInput struct {
	Transcript string `json:"transcript"`
}

// Insights is the artifact of an analyze_transcript job.
type Insights struct {
	Words    int      `json:"words"`
	Speakers []string `json:"speakers"`
	Topics   []string `json:"topics"`
	Score    float64  `json:"score"`
}

type transcriptAnalyzer struct {
	delay time.Duration
}

func (h *transcriptAnalyzer) Handle(ctx context.Context, x *executor.Exec, job *structs.Job) error {
	var in transcriptInput
	if err := decode(job, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Transcript) == "" {
		return executor.Permanent(errors.New("transcript is empty"))
	}

	if err := stage(ctx, x, h.delay, "parsing"); err != nil {
		return err
	}
	insights := analyze(in.Transcript)

	if err := stage(ctx, x, h.delay, "scoring"); err != nil {
		return err
	}
	insights.Score = score(insights)

	body, err := json.Marshal(insights)
	if err != nil {
		return err
	}
	if _, err := x.AddArtifact(ctx, "insights", "insights.json", "", string(body)); err != nil {
		return err
	}
	return x.Log(ctx, structs.LevelInfo, "done")
}

// analyze counts words, collects "Name:" speaker prefixes and picks the most
// frequent longer words as topics.
func analyze(transcript string) Insights {
	var out Insights
	speakers := map[string]bool{}
	freq := map[string]int{}

	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if name, rest, ok := strings.Cut(line, ":"); ok && len(name) > 0 && len(name) <= 32 && !strings.ContainsAny(name, " \t") {
			speakers[name] = true
			line = rest
		}
		for _, w := range strings.Fields(line) {
			out.Words++
			w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) }))
			if len(w) >= 6 {
				freq[w]++
			}
		}
	}

	for s := range speakers {
		out.Speakers = append(out.Speakers, s)
	}
	sort.Strings(out.Speakers)

	for w := range freq {
		out.Topics = append(out.Topics, w)
	}
	sort.Slice(out.Topics, func(i, j int) bool {
		a, b := out.Topics[i], out.Topics[j]
		if freq[a] != freq[b] {
			return freq[a] > freq[b]
		}
		return a < b
	})
	if len(out.Topics) > 5 {
		out.Topics = out.Topics[:5]
	}
	return out
}

// score rates how much material a transcript holds, in [0, 1].
func score(in Insights) float64 {
	s := float64(in.Words)/500 + float64(len(in.Topics))/10
	if s > 1 {
		return 1
	}
	return s
}
