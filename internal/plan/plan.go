// Package plan reads routine plans: YAML documents listing templates and
// recurrence rules, as produced by the plan generator or written by hand.
package plan

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"routine-planner/internal/model"
)

// Document is one importable plan.
type Document struct {
	Owner     string     `yaml:"owner"`
	Templates []Template `yaml:"templates"`
	Rules     []Rule     `yaml:"rules"`
}

// Template is referenced from rules by Key.
type Template struct {
	Key             string `yaml:"key"`
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	DurationMinutes int    `yaml:"duration_minutes"`
	Time            string `yaml:"time"`
}

// Rule either references a template or carries its own content.
type Rule struct {
	Template        string    `yaml:"template"`
	Name            string    `yaml:"name"`
	Description     string    `yaml:"description"`
	DurationMinutes int       `yaml:"duration_minutes"`
	Time            string    `yaml:"time"`
	Assignee        string    `yaml:"assignee"`
	Group           string    `yaml:"group"`
	Type            string    `yaml:"type"`
	Days            []Weekday `yaml:"days"`
	Interval        int       `yaml:"interval"`
	Start           string    `yaml:"start"`
	End             string    `yaml:"end"`
}

// Weekday accepts 0..6 (Sunday=0) or an English day name or its three-letter prefix.
type Weekday int

var weekdayNames = map[string]Weekday{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

func (w *Weekday) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: weekday must be a scalar", node.Line)
	}
	if n, err := strconv.Atoi(node.Value); err == nil {
		*w = Weekday(n)
		return nil
	}
	name := strings.ToLower(strings.TrimSpace(node.Value))
	if len(name) >= 3 {
		if d, ok := weekdayNames[name[:3]]; ok {
			*w = d
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown weekday %q", node.Line, node.Value)
}

// Parse decodes a plan document. Unknown fields are rejected.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("plan: document is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("plan: decode: %w", err)
	}
	if err := doc.check(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func Load(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("plan: read: %w", err)
	}
	return Parse(data)
}

func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func (d *Document) check() error {
	keys := make(map[string]bool, len(d.Templates))
	for i, t := range d.Templates {
		if t.Key == "" {
			return fmt.Errorf("plan: templates[%d]: key is required", i)
		}
		if keys[t.Key] {
			return fmt.Errorf("plan: templates[%d]: duplicate key %q", i, t.Key)
		}
		keys[t.Key] = true
	}
	for i, r := range d.Rules {
		if r.Template != "" && !keys[r.Template] {
			return fmt.Errorf("plan: rules[%d]: unknown template %q", i, r.Template)
		}
	}
	return nil
}

// Content converts a template entry.
func (t Template) Content() (model.Content, error) {
	at, err := model.ParseTimeOfDay(t.Time)
	if err != nil {
		return model.Content{}, fmt.Errorf("template %q: %w", t.Key, err)
	}
	return model.Content{
		Name:            strings.TrimSpace(t.Name),
		Description:     strings.TrimSpace(t.Description),
		DurationMinutes: t.DurationMinutes,
		ScheduledTime:   at,
	}, nil
}

// ToRule converts a rule entry. templateID is the stored id of the referenced
// template, or nil when the rule carries inline content.
func (r Rule) ToRule(templateID *string) (model.RecurrenceRule, error) {
	start, err := parseDate(r.Start)
	if err != nil {
		return model.RecurrenceRule{}, fmt.Errorf("start: %w", err)
	}
	rule := model.RecurrenceRule{
		TemplateID:     templateID,
		RecurrenceType: model.RecurrenceType(strings.ToLower(strings.TrimSpace(r.Type))),
		IntervalDays:   r.Interval,
		StartDate:      start,
		IsActive:       true,
	}
	if r.End != "" {
		end, err := parseDate(r.End)
		if err != nil {
			return model.RecurrenceRule{}, fmt.Errorf("end: %w", err)
		}
		rule.EndDate = &end
	}
	if r.Assignee != "" {
		assignee := r.Assignee
		rule.AssigneeID = &assignee
	}
	if r.Group != "" {
		group := r.Group
		rule.GroupID = &group
	}
	for _, d := range r.Days {
		rule.DaysOfWeek = append(rule.DaysOfWeek, int(d))
	}
	if templateID == nil {
		at, err := model.ParseTimeOfDay(r.Time)
		if err != nil {
			return model.RecurrenceRule{}, err
		}
		rule.Content = model.Content{
			Name:            strings.TrimSpace(r.Name),
			Description:     strings.TrimSpace(r.Description),
			DurationMinutes: r.DurationMinutes,
			ScheduledTime:   at,
		}
	}
	return rule, nil
}

func parseDate(s string) (model.Date, error) {
	if strings.TrimSpace(s) == "" {
		return model.Date{}, nil
	}
	return model.ParseDate(strings.TrimSpace(s))
}
