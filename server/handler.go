package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/runner/ecode"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/logstream"
	"github.com/ncobase/runner/net/resp"
	"github.com/ncobase/runner/service"
	"github.com/ncobase/runner/store"
)

type handler struct {
	svc  *service.Service
	logs *logstream.Gateway
	log  *logger.Logger
}

// fail maps a service error to a response. what names the resource for not
// found errors.
func (h *handler) fail(c *gin.Context, what string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		resp.Fail(c.Writer, resp.NotFound(ecode.NotExist(what)))
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrUnknownJobType),
		errors.Is(err, logstream.ErrBadCursor):
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
	case errors.Is(err, service.ErrJobFinished),
		errors.Is(err, service.ErrQuestionResolved):
		resp.Fail(c.Writer, resp.Conflict(err.Error()))
	default:
		h.log.Error(c.Request.Context(), "Request failed", "path", c.FullPath(), "error", err)
		resp.Fail(c.Writer, resp.InternalServer(ecode.Text(ecode.ServerErr)))
	}
}

// submit handles job creation.
func (h *handler) submit(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}

	job, run, err := h.svc.Submit(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "job", err)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusCreated, gin.H{"job": job, "run": run})
}

func (h *handler) listJobs(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsInvalid("limit")))
		return
	}
	jobs, err := h.svc.Jobs(c.Request.Context(), c.Query("workspaceId"), limit)
	if err != nil {
		h.fail(c, "job", err)
		return
	}
	resp.Success(c.Writer, jobs)
}

func (h *handler) getJob(c *gin.Context) {
	job, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "job", err)
		return
	}
	resp.Success(c.Writer, job)
}

// listRuns returns the run history of a job, ordered by start time.
func (h *handler) listRuns(c *gin.Context) {
	runs, err := h.svc.Runs(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "job", err)
		return
	}
	resp.Success(c.Writer, runs)
}

func (h *handler) cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			resp.Fail(c.Writer, resp.BadRequest(err.Error()))
			return
		}
	}
	job, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, "job", err)
		return
	}
	resp.Success(c.Writer, job)
}

func (h *handler) listQuestions(c *gin.Context) {
	all, _ := strconv.ParseBool(c.Query("all"))
	qs, err := h.svc.Questions(c.Request.Context(), c.Param("id"), !all)
	if err != nil {
		h.fail(c, "job", err)
		return
	}
	resp.Success(c.Writer, qs)
}

func (h *handler) answer(c *gin.Context) {
	var req struct {
		Answer string `json:"answer" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsRequired("answer")))
		return
	}
	q, err := h.svc.Answer(c.Request.Context(), c.Param("id"), req.Answer)
	if err != nil {
		h.fail(c, "question", err)
		return
	}
	resp.Success(c.Writer, q)
}

func (h *handler) skip(c *gin.Context) {
	q, err := h.svc.Skip(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "question", err)
		return
	}
	resp.Success(c.Writer, q)
}

func (h *handler) getRun(c *gin.Context) {
	run, err := h.svc.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "run", err)
		return
	}
	resp.Success(c.Writer, run)
}

// runLogs serves a page of log entries, or a live stream with stream=true.
func (h *handler) runLogs(c *gin.Context) {
	after, err := logstream.ParseCursor(c.Query("after"))
	if err != nil {
		h.fail(c, "run", err)
		return
	}
	if stream, _ := strconv.ParseBool(c.Query("stream")); stream {
		h.streamLogs(c, c.Param("id"), after)
		return
	}

	limit, err := intQuery(c, "limit")
	if err != nil {
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsInvalid("limit")))
		return
	}
	page, err := h.logs.Page(c.Request.Context(), c.Param("id"), after, limit)
	if err != nil {
		h.fail(c, "run", err)
		return
	}
	resp.Success(c.Writer, page)
}

func (h *handler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, "stats", err)
		return
	}
	resp.Success(c.Writer, stats)
}

func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}
