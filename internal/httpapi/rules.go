package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"routine-planner/internal/model"
	"routine-planner/internal/plan"
	"routine-planner/internal/service"
)

const maxPlanBytes = 1 << 20

type ruleAPI struct {
	rules *service.RuleService
	plans *service.PlanService
}

func registerRuleAPI(g *echo.Group, auth echo.MiddlewareFunc, rules *service.RuleService, plans *service.PlanService) {
	api := ruleAPI{rules: rules, plans: plans}

	rg := g.Group("/rules", auth)
	rg.POST("", api.createRule)
	rg.GET("", api.listRules)
	rg.GET("/:id", api.retrieveRule)
	rg.PUT("/:id", api.updateRule)
	rg.DELETE("/:id", api.deactivateRule)

	tg := g.Group("/templates", auth)
	tg.POST("", api.createTemplate)
	tg.GET("", api.listTemplates)
	tg.PUT("/:id", api.updateTemplate)

	gg := g.Group("/groups", auth)
	gg.POST("", api.createGroup)
	gg.POST("/:id/members", api.addMember)
	gg.DELETE("/:id/members/:user_id", api.removeMember)

	g.POST("/plans", api.importPlan, auth)
}

type ruleRequest struct {
	TemplateID      *string              `json:"template_id"`
	AssigneeID      *string              `json:"assignee_id" validate:"omitempty,max=64"`
	GroupID         *string              `json:"group_id"`
	RecurrenceType  model.RecurrenceType `json:"recurrence_type" validate:"required,oneof=once daily weekly custom_interval"`
	DaysOfWeek      []int                `json:"days_of_week" validate:"omitempty,dive,min=0,max=6"`
	IntervalDays    int                  `json:"interval_days" validate:"min=0"`
	StartDate       model.Date           `json:"start_date"`
	EndDate         *model.Date          `json:"end_date"`
	Name            string               `json:"name" validate:"max=200"`
	Description     string               `json:"description" validate:"max=2000"`
	DurationMinutes int                  `json:"duration_minutes" validate:"min=0,max=1440"`
	ScheduledTime   string               `json:"scheduled_time"`
}

func (r ruleRequest) rule() (model.RecurrenceRule, error) {
	at, err := model.ParseTimeOfDay(r.ScheduledTime)
	if err != nil {
		return model.RecurrenceRule{}, model.NewInvalidRuleError("scheduled_time", "%v", err)
	}
	return model.RecurrenceRule{
		TemplateID:     r.TemplateID,
		AssigneeID:     r.AssigneeID,
		GroupID:        r.GroupID,
		RecurrenceType: r.RecurrenceType,
		DaysOfWeek:     r.DaysOfWeek,
		IntervalDays:   r.IntervalDays,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		Content: model.Content{
			Name:            r.Name,
			Description:     r.Description,
			DurationMinutes: r.DurationMinutes,
			ScheduledTime:   at,
		},
	}, nil
}

type groupRequest struct {
	Name    string   `json:"name" validate:"required,max=120"`
	Members []string `json:"members" validate:"omitempty,dive,required,max=64"`
}

type memberRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

func (api *ruleAPI) createRule(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req ruleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	rule, err := req.rule()
	if err != nil {
		return err
	}
	stored, err := api.rules.CreateRule(c.Request().Context(), actor, &rule)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, stored)
}

func (api *ruleAPI) listRules(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	rules, err := api.rules.ListRules(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rules)
}

func (api *ruleAPI) retrieveRule(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	rule, err := api.rules.GetRule(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

func (api *ruleAPI) updateRule(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req ruleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	rule, err := req.rule()
	if err != nil {
		return err
	}
	stored, err := api.rules.UpdateRule(c.Request().Context(), actor, c.Param("id"), rule)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stored)
}

func (api *ruleAPI) deactivateRule(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := api.rules.DeactivateRule(c.Request().Context(), actor, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (api *ruleAPI) createTemplate(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req contentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	content, err := req.content()
	if err != nil {
		return err
	}
	tpl, err := api.rules.CreateTemplate(c.Request().Context(), actor, &model.TaskTemplate{Content: content})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tpl)
}

func (api *ruleAPI) updateTemplate(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req contentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	content, err := req.content()
	if err != nil {
		return err
	}
	tpl, err := api.rules.UpdateTemplate(c.Request().Context(), actor, c.Param("id"), content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tpl)
}

func (api *ruleAPI) listTemplates(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	templates, err := api.rules.ListTemplates(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, templates)
}

func (api *ruleAPI) createGroup(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req groupRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	group, err := api.rules.CreateGroup(c.Request().Context(), actor, req.Name, req.Members)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, group)
}

func (api *ruleAPI) addMember(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req memberRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	group, err := api.rules.AddGroupMember(c.Request().Context(), actor, c.Param("id"), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, group)
}

func (api *ruleAPI) removeMember(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := api.rules.RemoveGroupMember(c.Request().Context(), actor, c.Param("id"), c.Param("user_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// importPlan takes a YAML plan document as the raw request body.
func (api *ruleAPI) importPlan(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPlanBytes+1))
	if err != nil {
		return errors.Wrap(err, "reading plan")
	}
	if len(body) > maxPlanBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "plan is larger than 1 MiB")
	}
	doc, err := plan.Parse(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, strings.TrimPrefix(err.Error(), "plan: "))
	}
	res, err := api.plans.Import(c.Request().Context(), actor, doc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}
