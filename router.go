package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Severity string

const (
	SeveritySmall  Severity = "sm"
	SeverityMedium Severity = "md"
	SeverityLarge  Severity = "lg"
)

func (s Severity) valid() bool {
	switch s {
	case "", SeveritySmall, SeverityMedium, SeverityLarge:
		return true
	}
	return false
}

const (
	defaultStatusField     = "Status"
	defaultSeverityField   = "Pain Score"
	defaultAssigneeField   = "Assignee"
	defaultAttachmentField = "Attachments"
)

// legacyAttachmentSlots is the number of single-image fields used when
// multi_attachment_field is off.
const legacyAttachmentSlots = 3

var defaultAttachmentFields = []string{"Screenshot 1", "Screenshot 2", "Screenshot 3"}

// DestinationRule says where a reaction with a given emoji ends up.
type DestinationRule struct {
	Emoji                string
	BaseID               string
	TableID              string
	Field                string
	Severity             Severity
	InitialStatus        string
	StatusOverride       string
	MultiAttachmentField bool
	RequireText          bool

	StatusField      string
	SeverityField    string
	AssigneeField    string
	AttachmentField  string
	AttachmentFields []string
}

// Status returns the status a new record starts in.
func (r DestinationRule) Status() string {
	if r.StatusOverride != "" {
		return r.StatusOverride
	}
	return r.InitialStatus
}

// Router is an immutable emoji -> rule table.
type Router struct {
	rules map[string]DestinationRule
}

func NewRouter(rules []DestinationRule) (*Router, error) {
	table := make(map[string]DestinationRule, len(rules))
	for _, rule := range rules {
		if rule.Emoji == "" {
			return nil, errors.New("rule with empty emoji")
		}
		if _, dup := table[rule.Emoji]; dup {
			return nil, fmt.Errorf("duplicate rule for emoji %q", rule.Emoji)
		}
		if rule.BaseID == "" || rule.TableID == "" || rule.Field == "" {
			return nil, fmt.Errorf("rule %q: base, table and field are required", rule.Emoji)
		}
		if !rule.Severity.valid() {
			return nil, fmt.Errorf("rule %q: invalid severity %q", rule.Emoji, rule.Severity)
		}
		if !rule.MultiAttachmentField && len(rule.AttachmentFields) != legacyAttachmentSlots {
			return nil, fmt.Errorf("rule %q: attachment_fields needs exactly %d names, got %d", rule.Emoji, legacyAttachmentSlots, len(rule.AttachmentFields))
		}
		rule.AttachmentFields = append([]string(nil), rule.AttachmentFields...)
		table[rule.Emoji] = rule
	}
	return &Router{rules: table}, nil
}

// Route looks up the rule for an emoji. Surrounding colons are ignored.
func (r *Router) Route(emoji string) (DestinationRule, bool) {
	// The Events API always sends bare names; colons only come from relay producers.
	rule, ok := r.rules[strings.Trim(emoji, ":")]
	if !ok {
		return DestinationRule{}, false
	}
	rule.AttachmentFields = append([]string(nil), rule.AttachmentFields...)
	return rule, true
}

func (r *Router) Emojis() []string {
	emojis := make([]string, 0, len(r.rules))
	for emoji := range r.rules {
		emojis = append(emojis, emoji)
	}
	return emojis
}

// AssigneeMap maps a Slack user ID to the name recorded as assignee.
type AssigneeMap map[string]string

func (m AssigneeMap) Lookup(userID string) (string, bool) {
	name, ok := m[userID]
	if !ok || strings.TrimSpace(name) == "" {
		return "", false
	}
	return name, true
}

type ruleSpec struct {
	Emoji                string   `yaml:"emoji"`
	Base                 string   `yaml:"base"`
	Table                string   `yaml:"table"`
	Field                string   `yaml:"field"`
	Severity             string   `yaml:"severity"`
	Status               string   `yaml:"status"`
	StatusOverride       string   `yaml:"status_override"`
	MultiAttachmentField *bool    `yaml:"multi_attachment_field"`
	RequireText          *bool    `yaml:"require_text"`
	StatusField          string   `yaml:"status_field"`
	SeverityField        string   `yaml:"severity_field"`
	AssigneeField        string   `yaml:"assignee_field"`
	AttachmentField      string   `yaml:"attachment_field"`
	AttachmentFields     []string `yaml:"attachment_fields"`
}

type rulesFile struct {
	Defaults  ruleSpec   `yaml:"defaults"`
	Rules     []ruleSpec `yaml:"rules"`
	Assignees yaml.Node  `yaml:"assignees"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstBool(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}

func (s ruleSpec) merge(defaults ruleSpec) DestinationRule {
	fields := s.AttachmentFields
	if len(fields) == 0 {
		fields = defaults.AttachmentFields
	}
	if len(fields) == 0 {
		fields = defaultAttachmentFields
	}
	return DestinationRule{
		Emoji:                strings.Trim(s.Emoji, ":"),
		BaseID:               firstNonEmpty(s.Base, defaults.Base),
		TableID:              firstNonEmpty(s.Table, defaults.Table),
		Field:                firstNonEmpty(s.Field, defaults.Field),
		Severity:             Severity(strings.ToLower(s.Severity)),
		InitialStatus:        firstNonEmpty(s.Status, defaults.Status),
		StatusOverride:       s.StatusOverride,
		MultiAttachmentField: firstBool(s.MultiAttachmentField, defaults.MultiAttachmentField),
		RequireText:          firstBool(s.RequireText, defaults.RequireText),
		StatusField:          firstNonEmpty(s.StatusField, defaults.StatusField, defaultStatusField),
		SeverityField:        firstNonEmpty(s.SeverityField, defaults.SeverityField, defaultSeverityField),
		AssigneeField:        firstNonEmpty(s.AssigneeField, defaults.AssigneeField, defaultAssigneeField),
		AttachmentField:      firstNonEmpty(s.AttachmentField, defaults.AttachmentField, defaultAttachmentField),
		AttachmentFields:     fields,
	}
}

// parseRules decodes a rules document. ${VAR} references are expanded from the
// environment first, so base and table IDs can stay out of the file.
func parseRules(data []byte) ([]DestinationRule, AssigneeMap, error) {
	var doc rulesFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, nil, errors.New("rules file defines no rules")
	}

	rules := make([]DestinationRule, 0, len(doc.Rules))
	for _, rs := range doc.Rules {
		rules = append(rules, rs.merge(doc.Defaults))
	}

	assignees := AssigneeMap{}
	if !doc.Assignees.IsZero() {
		if err := doc.Assignees.Decode(&assignees); err != nil {
			Warn("Ignoring malformed assignees block in rules file: %v", err)
			assignees = AssigneeMap{}
		}
	}
	return rules, assignees, nil
}

// fallbackRule is the single-destination setup driven by TARGET_EMOJI and AIRTABLE_*.
func fallbackRule(config Config) DestinationRule {
	return ruleSpec{
		Emoji: config.TargetEmoji,
		Base:  config.AirtableBaseID,
		Table: config.AirtableTableName,
		Field: config.AirtableFieldName,
	}.merge(ruleSpec{})
}

// parseAssigneeJSON reads the ASSIGNEE_MAP JSON object. Malformed input yields an
// empty map so lookups simply miss.
func parseAssigneeJSON(raw string) AssigneeMap {
	assignees := AssigneeMap{}
	if strings.TrimSpace(raw) == "" {
		return assignees
	}
	if err := json.Unmarshal([]byte(raw), &assignees); err != nil {
		Warn("Ignoring malformed ASSIGNEE_MAP: %v", err)
		return AssigneeMap{}
	}
	return assignees
}

// loadRouting builds the router and assignee map once at startup.
func loadRouting(config Config) (*Router, AssigneeMap, error) {
	var (
		rules     []DestinationRule
		assignees AssigneeMap
	)

	data, err := os.ReadFile(config.RulesPath)
	switch {
	case err == nil:
		rules, assignees, err = parseRules(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", config.RulesPath, err)
		}
		Info("Loaded %d destination rules from %s", len(rules), config.RulesPath)
	case errors.Is(err, os.ErrNotExist):
		rules = []DestinationRule{fallbackRule(config)}
		assignees = AssigneeMap{}
		Info("No rules file at %s; routing :%s: to %s/%s", config.RulesPath, config.TargetEmoji, config.AirtableBaseID, config.AirtableTableName)
	default:
		return nil, nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	for id, name := range parseAssigneeJSON(config.AssigneeMap) {
		assignees[id] = name
	}

	router, err := NewRouter(rules)
	if err != nil {
		return nil, nil, err
	}
	return router, assignees, nil
}
