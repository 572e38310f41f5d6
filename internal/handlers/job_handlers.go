package handlers

import (
	"errors"
	"net/http"

	"storeadmin/internal/common"
	"storeadmin/internal/jobs/background"

	"github.com/labstack/echo/v4"
)

// JobRunner is the part of the background scheduler exposed over HTTP.
type JobRunner interface {
	GetJobStatus() map[string]interface{}
	RunNow(name string) error
}

type JobHandlers struct {
	jobs JobRunner
}

func NewJobHandlers(jobs JobRunner) *JobHandlers {
	return &JobHandlers{jobs: jobs}
}

// ListJobs reports the registered background jobs
func (h *JobHandlers) ListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}

// RunJob triggers a job outside its schedule, e.g. a category refresh after bulk edits
func (h *JobHandlers) RunJob(c echo.Context) error {
	name := c.Param("name")
	if err := h.jobs.RunNow(name); err != nil {
		if errors.Is(err, background.ErrJobNotFound) {
			return common.SendNotFoundError(c, "Job")
		}
		c.Logger().Errorf("run job %s: %v", name, err)
		return common.SendServerError(c, "Failed to run job")
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"job":    name,
		"status": "triggered",
	})
}
