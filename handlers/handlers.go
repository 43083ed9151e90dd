// Package handlers provides the built-in handler of every job type.
//
// The handlers simulate the work of each stage: they log progress, check
// for cancellation between stages and store their result as an artifact.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/structs"
)

// Options tune the simulated handlers.
type Options struct {
	// StageDelay is the pause between stages.
	StageDelay time.Duration
}

// Register adds a handler for every job type to reg.
func Register(reg *executor.Registry, opts Options) error {
	docs := map[structs.JobType]document{
		structs.TypeGeneratePRD: {
			kind:     "prd",
			title:    "Product Requirements",
			sections: []string{"Problem", "Goals", "User Stories", "Requirements", "Out of Scope"},
		},
		structs.TypeGenerateDesignBrief: {
			kind:     "design_brief",
			title:    "Design Brief",
			sections: []string{"Context", "Audience", "Principles", "Flows", "Open Questions"},
		},
		structs.TypeGenerateEngineeringSpec: {
			kind:     "engineering_spec",
			title:    "Engineering Spec",
			sections: []string{"Overview", "Architecture", "Data Model", "Interfaces", "Rollout"},
		},
		structs.TypeGenerateGTMBrief: {
			kind:     "gtm_brief",
			title:    "Go-To-Market Brief",
			sections: []string{"Positioning", "Audience", "Channels", "Launch Plan"},
		},
	}

	handlers := map[structs.JobType]executor.Handler{
		structs.TypeAnalyzeTranscript:   &transcriptAnalyzer{delay: opts.StageDelay},
		structs.TypeRunJuryEvaluation:   &juryEvaluator{delay: opts.StageDelay},
		structs.TypeCreateFeatureBranch: &branchCreator{delay: opts.StageDelay},
	}
	for t, d := range docs {
		d.delay = opts.StageDelay
		handlers[t] = &d
	}

	for _, t := range structs.JobTypes {
		h, ok := handlers[t]
		if !ok {
			return fmt.Errorf("handlers: no built-in handler for %s", t)
		}
		if err := reg.Register(t, h); err != nil {
			return err
		}
	}
	return nil
}

// stage logs msg and waits delay. It returns the context cause once the run
// context ends and executor.ErrCancelled once the job is cancelled.
func stage(ctx context.Context, x *executor.Exec, delay time.Duration, msg string) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if x.Cancelled(ctx) {
		return executor.ErrCancelled
	}
	if err := x.Log(ctx, structs.LevelInfo, msg); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}

// decode unmarshals job input into v. Malformed input cannot succeed on a
// retry, so it is a permanent failure.
func decode(job *structs.Job, v any) error {
	if len(job.Input) == 0 {
		return nil
	}
	if err := json.Unmarshal(job.Input, v); err != nil {
		return executor.Permanent(fmt.Errorf("decode %s input: %w", job.Type, err))
	}
	return nil
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
