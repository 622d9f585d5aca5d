package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"routine-planner/internal/model"
	"routine-planner/internal/service"
)

type jobAPI struct {
	jobs *service.JobRunner
}

// registerJobAPI mounts the entrypoints an external scheduler calls. A failed
// run answers 500 with the same body shape as a successful one.
func registerJobAPI(g *echo.Group, guard echo.MiddlewareFunc, jobs *service.JobRunner) {
	api := jobAPI{jobs: jobs}

	jg := g.Group("/jobs", guard)
	jg.POST("/reconcile", api.reconcile)
	jg.POST("/sweep", api.sweep)
	jg.GET("/runs", api.runs)
}

func jobStatus(res service.JobResult) int {
	if res.Success {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func (api *jobAPI) reconcile(c echo.Context) error {
	res := api.jobs.RunReconcile(c.Request().Context())
	return c.JSON(jobStatus(res), res)
}

func (api *jobAPI) sweep(c echo.Context) error {
	res := api.jobs.RunSweep(c.Request().Context())
	return c.JSON(jobStatus(res), res)
}

func (api *jobAPI) runs(c echo.Context) error {
	var (
		job   string
		limit int
	)
	err := echo.QueryParamsBinder(c).
		String("job", &job).
		Int("limit", &limit).
		BindError()
	if err != nil {
		return err
	}
	switch job {
	case "", model.JobReconcile, model.JobSweep:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown job "+job)
	}
	runs, err := api.jobs.Recent(c.Request().Context(), job, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}
