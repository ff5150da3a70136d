package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ukydev/fleet-pm/internal/models"
	"github.com/ukydev/fleet-pm/internal/workorder"
	"gopkg.in/yaml.v3"
)

// PolicyFile models the policy YAML.
//
//	criticality_priority:
//	  HIGH: HIGH
//	  IMPORTANT: URGENT
//	default_priority: MEDIUM
//	escalated_priority: HIGH
//	remediation_window: 72h
//	escalation_roles: [manager]
//	labor_rate_per_hour: 85
type PolicyFile struct {
	CriticalityPriority map[string]string `yaml:"criticality_priority"`
	DefaultPriority     string            `yaml:"default_priority"`
	EscalatedPriority   string            `yaml:"escalated_priority"`
	RemediationWindow   string            `yaml:"remediation_window"`
	EscalationRoles     []string          `yaml:"escalation_roles"`
	LaborRatePerHour    float64           `yaml:"labor_rate_per_hour"`
}

// LoadPolicy reads a policy file. An empty path yields the default policy.
func LoadPolicy(path string) (workorder.Policy, error) {
	if path == "" {
		return workorder.DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return workorder.Policy{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	policy, err := ParsePolicy(data)
	if err != nil {
		return workorder.Policy{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return policy, nil
}

// ParsePolicy decodes policy YAML. Omitted keys keep their defaults.
func ParsePolicy(data []byte) (workorder.Policy, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return workorder.Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	file.normalize()
	if err := file.Validate(); err != nil {
		return workorder.Policy{}, err
	}
	return file.Policy(), nil
}

func (f *PolicyFile) normalize() {
	upper := make(map[string]string, len(f.CriticalityPriority))
	for k, v := range f.CriticalityPriority {
		upper[strings.ToUpper(strings.TrimSpace(k))] = strings.ToUpper(strings.TrimSpace(v))
	}
	f.CriticalityPriority = upper
	f.DefaultPriority = strings.ToUpper(strings.TrimSpace(f.DefaultPriority))
	f.EscalatedPriority = strings.ToUpper(strings.TrimSpace(f.EscalatedPriority))
	for i, r := range f.EscalationRoles {
		f.EscalationRoles[i] = strings.ToLower(strings.TrimSpace(r))
	}
}

// Validate reports the first invalid entry.
func (f PolicyFile) Validate() error {
	for c, p := range f.CriticalityPriority {
		if !models.IsValidCriticality(models.Criticality(c)) {
			return fmt.Errorf("criticality_priority: unknown criticality %q", c)
		}
		if !models.IsValidPriority(models.Priority(p)) {
			return fmt.Errorf("criticality_priority[%s]: unknown priority %q", c, p)
		}
	}
	if f.DefaultPriority != "" && !models.IsValidPriority(models.Priority(f.DefaultPriority)) {
		return fmt.Errorf("default_priority: unknown priority %q", f.DefaultPriority)
	}
	switch models.Priority(f.EscalatedPriority) {
	case "", models.PriorityHigh, models.PriorityUrgent:
	default:
		return fmt.Errorf("escalated_priority: must be HIGH or URGENT, got %q", f.EscalatedPriority)
	}
	if f.RemediationWindow != "" {
		d, err := time.ParseDuration(f.RemediationWindow)
		if err != nil {
			return fmt.Errorf("remediation_window: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("remediation_window must be positive")
		}
	}
	for _, r := range f.EscalationRoles {
		if !models.IsValidRole(models.Role(r)) {
			return fmt.Errorf("escalation_roles: unknown role %q", r)
		}
	}
	if f.LaborRatePerHour < 0 {
		return fmt.Errorf("labor_rate_per_hour must not be negative")
	}
	return nil
}

// Policy converts a validated file into a workorder policy, filling omitted
// keys from the defaults.
func (f PolicyFile) Policy() workorder.Policy {
	p := workorder.DefaultPolicy()
	if len(f.CriticalityPriority) > 0 {
		p.CriticalityPriority = make(map[models.Criticality]models.Priority, len(f.CriticalityPriority))
		for c, prio := range f.CriticalityPriority {
			p.CriticalityPriority[models.Criticality(c)] = models.Priority(prio)
		}
	}
	if f.DefaultPriority != "" {
		p.DefaultPriority = models.Priority(f.DefaultPriority)
	}
	if f.EscalatedPriority != "" {
		p.EscalatedPriority = models.Priority(f.EscalatedPriority)
	}
	if f.RemediationWindow != "" {
		p.RemediationWindow, _ = time.ParseDuration(f.RemediationWindow)
	}
	if len(f.EscalationRoles) > 0 {
		p.EscalationRoles = make([]models.Role, len(f.EscalationRoles))
		for i, r := range f.EscalationRoles {
			p.EscalationRoles[i] = models.Role(r)
		}
	}
	p.LaborRatePerHour = f.LaborRatePerHour
	return p
}
