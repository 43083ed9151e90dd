package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/structs"
)

const defaultJurors = 3

type juryInput struct {
	Artifact string   `json:"artifact"`
	Jurors   []string `json:"jurors"`
}

// Verdict is one juror's rating.
type Verdict struct {
	Juror string `json:"juror"`
	Score int    `json:"score"`
	Pass  bool   `json:"pass"`
}

// JuryReport is the artifact of a run_jury_evaluation job.
type JuryReport struct {
	Verdicts []Verdict `json:"verdicts"`
	Average  float64   `json:"average"`
	Passed   bool      `json:"passed"`
}

type juryEvaluator struct {
	delay time.Duration
}

func (h *juryEvaluator) Handle(ctx context.Context, x *executor.Exec, job *structs.Job) error {
	var in juryInput
	if err := decode(job, &in); err != nil {
		return err
	}
	if in.Artifact == "" {
		return executor.Permanent(errors.New("nothing to evaluate"))
	}
	if len(in.Jurors) == 0 {
		for i := 1; i <= defaultJurors; i++ {
			in.Jurors = append(in.Jurors, fmt.Sprintf("juror-%d", i))
		}
	}

	report := JuryReport{}
	total := 0
	for _, juror := range in.Jurors {
		if err := stage(ctx, x, h.delay, "evaluating with "+juror); err != nil {
			return err
		}
		v := rate(juror, in.Artifact)
		report.Verdicts = append(report.Verdicts, v)
		total += v.Score
		if err := x.Logf(ctx, "%s scored %d", juror, v.Score); err != nil {
			return err
		}
	}
	report.Average = float64(total) / float64(len(report.Verdicts))
	report.Passed = report.Average >= 6

	body, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if _, err := x.AddArtifact(ctx, "jury_report", "jury.json", "", string(body)); err != nil {
		return err
	}
	return x.Logf(ctx, "done: average %.1f", report.Average)
}

// rate gives a stable 1..10 score per juror and artifact.
func rate(juror, artifact string) Verdict {
	h := fnv.New32a()
	h.Write([]byte(juror))
	h.Write([]byte{0})
	h.Write([]byte(artifact))
	s := int(h.Sum32()%10) + 1
	return Verdict{Juror: juror, Score: s, Pass: s >= 6}
}
