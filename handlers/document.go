package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/structs"
)

type documentInput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// document drafts a markdown document section by section.
type document struct {
	kind     string
	title    string
	sections []string
	delay    time.Duration
}

func (h *document) Handle(ctx context.Context, x *executor.Exec, job *structs.Job) error {
	var in documentInput
	if err := decode(job, &in); err != nil {
		return err
	}
	if in.Title == "" {
		in.Title = "Untitled"
	}

	if err := stage(ctx, x, h.delay, "outlining "+h.title); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n", h.title, in.Title)
	for _, section := range h.sections {
		if err := stage(ctx, x, h.delay, "drafting "+strings.ToLower(section)); err != nil {
			return err
		}
		fmt.Fprintf(&b, "\n## %s\n\n", section)
		if in.Summary != "" {
			fmt.Fprintf(&b, "%s\n", in.Summary)
		} else {
			b.WriteString("TBD\n")
		}
	}

	name := fmt.Sprintf("%s-%s.md", slug.Make(in.Title), h.kind)
	if _, err := x.AddArtifact(ctx, h.kind, name, "", b.String()); err != nil {
		return err
	}
	return x.Logf(ctx, "done: %d sections, %d words", len(h.sections), wordCount(b.String()))
}
