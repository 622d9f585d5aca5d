package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"routine-planner/internal/model"
	"routine-planner/internal/repository"
	"routine-planner/internal/service"
)

const maxPageSize = 500

type instanceAPI struct {
	svc *service.InstanceService
}

func registerInstanceAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *service.InstanceService) {
	api := instanceAPI{svc: svc}

	ig := g.Group("/instances", auth)
	ig.GET("", api.query)
	ig.POST("", api.create)
	ig.GET("/today", api.today)
	ig.GET("/upcoming", api.upcoming)
	ig.GET("/overdue", api.overdue)

	ig.GET("/:id", api.retrieve)
	ig.PATCH("/:id", api.customize)
	ig.PUT("/:id/status", api.setStatus)
	ig.POST("/:id/toggle", api.toggle)
	ig.POST("/:id/notes", api.addNote)

	g.GET("/stats", api.stats, auth)
}

type statusRequest struct {
	Status model.Status `json:"status" validate:"required,oneof=pending completed missed"`
}

type toggleRequest struct {
	Completed *bool `json:"completed" validate:"required"`
}

type noteRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type contentRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=2000"`
	DurationMinutes int    `json:"duration_minutes" validate:"min=0,max=1440"`
	ScheduledTime   string `json:"scheduled_time"`
}

func (r contentRequest) content() (model.Content, error) {
	at, err := model.ParseTimeOfDay(r.ScheduledTime)
	if err != nil {
		return model.Content{}, model.NewInvalidRuleError("scheduled_time", "%v", err)
	}
	return model.Content{
		Name:            strings.TrimSpace(r.Name),
		Description:     r.Description,
		DurationMinutes: r.DurationMinutes,
		ScheduledTime:   at,
	}, nil
}

type newInstanceRequest struct {
	AssigneeID    string     `json:"assignee_id" validate:"required,max=64"`
	ScheduledDate model.Date `json:"scheduled_date"`
	contentRequest
}

// patchRequest edits only the fields present. An empty scheduled_time clears it.
type patchRequest struct {
	Name            *string `json:"name" validate:"omitempty,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=2000"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,min=0,max=1440"`
	ScheduledTime   *string `json:"scheduled_time"`
}

func (r patchRequest) patch() (service.ContentPatch, error) {
	p := service.ContentPatch{
		Name:            r.Name,
		Description:     r.Description,
		DurationMinutes: r.DurationMinutes,
	}
	if r.ScheduledTime != nil {
		at, err := model.ParseTimeOfDay(*r.ScheduledTime)
		if err != nil {
			return p, model.NewInvalidRuleError("scheduled_time", "%v", err)
		}
		p.ScheduledTime = at
		p.ClearTime = at == nil
	}
	return p, nil
}

func (api *instanceAPI) query(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var (
		f        repository.InstanceFilter
		from, to model.Date
		status   string
	)
	err = echo.QueryParamsBinder(c).
		String("assignee_id", &f.AssigneeID).
		String("rule_id", &f.RuleID).
		String("status", &status).
		TextUnmarshaler("from", &from).
		TextUnmarshaler("to", &to).
		Int("limit", &f.Limit).
		Int("offset", &f.Offset).
		BindError()
	if err != nil {
		return err
	}
	if status != "" {
		f.Status = model.Status(status)
		if !f.Status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown status "+status)
		}
	}
	if !from.IsZero() {
		f.From = &from
	}
	if !to.IsZero() {
		f.To = &to
	}
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	instances, err := api.svc.List(c.Request().Context(), actor, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, instances)
}

func (api *instanceAPI) today(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	instances, err := api.svc.ListToday(c.Request().Context(), actor, c.QueryParam("assignee_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, instances)
}

func (api *instanceAPI) upcoming(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var days int
	if err := echo.QueryParamsBinder(c).Int("days", &days).BindError(); err != nil {
		return err
	}
	instances, err := api.svc.ListUpcoming(c.Request().Context(), actor, c.QueryParam("assignee_id"), days)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, instances)
}

func (api *instanceAPI) overdue(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	instances, err := api.svc.ListOverdue(c.Request().Context(), actor, c.QueryParam("assignee_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, instances)
}

func (api *instanceAPI) retrieve(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	inst, err := api.svc.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

func (api *instanceAPI) create(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req newInstanceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	content, err := req.content()
	if err != nil {
		return err
	}
	inst, err := api.svc.CreateManual(c.Request().Context(), actor, service.NewInstance{
		AssigneeID:    req.AssigneeID,
		ScheduledDate: req.ScheduledDate,
		Content:       content,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inst)
}

func (api *instanceAPI) setStatus(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inst, err := api.svc.SetStatus(c.Request().Context(), actor, c.Param("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

func (api *instanceAPI) toggle(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req toggleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inst, err := api.svc.ToggleComplete(c.Request().Context(), actor, c.Param("id"), *req.Completed)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

func (api *instanceAPI) addNote(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req noteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inst, err := api.svc.AddNote(c.Request().Context(), actor, c.Param("id"), req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

func (api *instanceAPI) customize(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req patchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	patch, err := req.patch()
	if err != nil {
		return err
	}
	inst, err := api.svc.Customize(c.Request().Context(), actor, c.Param("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

func (api *instanceAPI) stats(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var from, to model.Date
	err = echo.QueryParamsBinder(c).
		TextUnmarshaler("from", &from).
		TextUnmarshaler("to", &to).
		BindError()
	if err != nil {
		return err
	}
	stats, err := api.svc.CompletionStats(c.Request().Context(), actor, c.QueryParam("assignee_id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
