package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/structs"
)

type branchInput struct {
	Title      string `json:"title"`
	Repository string `json:"repository"`
	Base       string `json:"base"`
}

type branchCreator struct {
	delay time.Duration
}

// Handle asks for the branch name before creating it. Skipping the question
// uses a name derived from the title.
func (h *branchCreator) Handle(ctx context.Context, x *executor.Exec, job *structs.Job) error {
	var in branchInput
	if err := decode(job, &in); err != nil {
		return err
	}
	if in.Base == "" {
		in.Base = "main"
	}
	if in.Repository == "" {
		in.Repository = job.WorkspaceID
	}

	suggested := BranchName(in.Title, job.ID)
	if err := stage(ctx, x, h.delay, "suggesting "+suggested); err != nil {
		return err
	}

	name, skipped, err := x.Ask(ctx, "branch_name", "Name of the feature branch? Skip to use "+suggested+".")
	if err != nil {
		return err
	}
	if skipped || strings.TrimSpace(name) == "" {
		name = suggested
	}

	if err := stage(ctx, x, h.delay, "creating "+name+" from "+in.Base); err != nil {
		return err
	}
	uri := "git://" + in.Repository + "/refs/heads/" + name
	if _, err := x.AddArtifact(ctx, "branch", name, uri, ""); err != nil {
		return err
	}
	return x.Log(ctx, structs.LevelInfo, "done")
}

// BranchName derives feature/<slug> from a title, falling back to the first
// characters of the job id.
func BranchName(title, jobID string) string {
	s := slug.Make(title)
	if s == "" {
		s = jobID[:min(len(jobID), 8)]
	}
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "-")
	}
	return "feature/" + s
}
