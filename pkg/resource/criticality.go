package resource

import (
	"fmt"
	"strings"
)

// Type is a normalized resource type such as "database" or "web_app".
type Type string

// TypeUnknown is used for resources without a type.
const TypeUnknown Type = "unknown"

// NormalizeType lower-cases and snake-cases a raw type string.
func NormalizeType(raw string) Type {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return TypeUnknown
	}
	s = strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(s)
	return Type(s)
}

// Tier is a base severity weight assigned by resource type.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
	TierCritical
)

func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParseTier accepts the names produced by Tier.String.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return TierCritical, nil
	case "high":
		return TierHigh, nil
	case "medium":
		return TierMedium, nil
	case "low":
		return TierLow, nil
	}
	return TierLow, fmt.Errorf("unknown criticality tier %q", s)
}

// Category groups resource types sharing a risk multiplier.
type Category string

const (
	CategoryEntryPoint     Category = "entry-point"
	CategorySecurity       Category = "security"
	CategoryDataStore      Category = "data-store"
	CategoryInfrastructure Category = "infrastructure"
	CategoryMessaging      Category = "messaging"
	CategoryCompute        Category = "compute"
	CategoryStorage        Category = "storage"
	CategoryNetworking     Category = "networking"
)

// Profile is the criticality classification of a type.
type Profile struct {
	Tier     Tier     `json:"tier"`
	Category Category `json:"category"`
	// Known is false when the type fell through to the default branch.
	Known bool `json:"known"`
}

var defaultTierWeights = map[Tier]float64{
	TierCritical: 40,
	TierHigh:     30,
	TierMedium:   21,
	TierLow:      11,
}

var defaultCategoryMultipliers = map[Category]float64{
	CategoryEntryPoint:     1.40,
	CategorySecurity:       1.35,
	CategoryDataStore:      1.25,
	CategoryMessaging:      1.15,
	CategoryInfrastructure: 1.10,
	CategoryCompute:        1.00,
	CategoryStorage:        0.90,
	CategoryNetworking:     0.80,
}

var defaultProfiles = map[Type]Profile{
	// entry points
	"web_app":       {TierHigh, CategoryEntryPoint, true},
	"api_gateway":   {TierHigh, CategoryEntryPoint, true},
	"load_balancer": {TierHigh, CategoryEntryPoint, true},
	"app_service":   {TierHigh, CategoryEntryPoint, true},
	"cdn":           {TierMedium, CategoryEntryPoint, true},
	"dns_zone":      {TierCritical, CategoryEntryPoint, true},

	// security
	"key_vault":         {TierCritical, CategorySecurity, true},
	"identity_provider": {TierCritical, CategorySecurity, true},
	"firewall":          {TierHigh, CategorySecurity, true},
	"waf":               {TierHigh, CategorySecurity, true},
	"certificate":       {TierMedium, CategorySecurity, true},
	"security_group":    {TierMedium, CategorySecurity, true},

	// data stores
	"database":       {TierCritical, CategoryDataStore, true},
	"sql_database":   {TierCritical, CategoryDataStore, true},
	"cosmos_db":      {TierCritical, CategoryDataStore, true},
	"cache":          {TierHigh, CategoryDataStore, true},
	"data_warehouse": {TierHigh, CategoryDataStore, true},
	"search_index":   {TierMedium, CategoryDataStore, true},

	// messaging
	"message_queue": {TierHigh, CategoryMessaging, true},
	"event_hub":     {TierHigh, CategoryMessaging, true},
	"service_bus":   {TierHigh, CategoryMessaging, true},
	"topic":         {TierMedium, CategoryMessaging, true},

	// infrastructure
	"kubernetes_cluster":   {TierCritical, CategoryInfrastructure, true},
	"app_service_plan":     {TierHigh, CategoryInfrastructure, true},
	"container_registry":   {TierMedium, CategoryInfrastructure, true},
	"monitoring_workspace": {TierLow, CategoryInfrastructure, true},

	// compute
	"virtual_machine": {TierMedium, CategoryCompute, true},
	"vm_scale_set":    {TierMedium, CategoryCompute, true},
	"function_app":    {TierMedium, CategoryCompute, true},
	"container":       {TierMedium, CategoryCompute, true},
	"workload":        {TierMedium, CategoryCompute, true},
	"service":         {TierMedium, CategoryCompute, true},

	// storage
	"storage_account": {TierMedium, CategoryStorage, true},
	"object_bucket":   {TierMedium, CategoryStorage, true},
	"blob_container":  {TierLow, CategoryStorage, true},
	"file_share":      {TierLow, CategoryStorage, true},

	// networking
	"vnet":             {TierMedium, CategoryNetworking, true},
	"nat_gateway":      {TierMedium, CategoryNetworking, true},
	"vpn_gateway":      {TierHigh, CategoryNetworking, true},
	"subnet":           {TierLow, CategoryNetworking, true},
	"public_ip":        {TierLow, CategoryNetworking, true},
	"private_endpoint": {TierLow, CategoryNetworking, true},
}

// fallbackProfile is the default branch for unknown types: lowest tier, baseline category.
var fallbackProfile = Profile{Tier: TierLow, Category: CategoryCompute, Known: false}

// Model is the static lookup from resource type to criticality.
// A Model is immutable once built and safe for concurrent use.
type Model struct {
	tierWeights         map[Tier]float64
	categoryMultipliers map[Category]float64
	profiles            map[Type]Profile
}

// DefaultModel returns the built-in criticality table.
func DefaultModel() *Model {
	m := &Model{
		tierWeights:         make(map[Tier]float64, len(defaultTierWeights)),
		categoryMultipliers: make(map[Category]float64, len(defaultCategoryMultipliers)),
		profiles:            make(map[Type]Profile, len(defaultProfiles)),
	}
	for k, v := range defaultTierWeights {
		m.tierWeights[k] = v
	}
	for k, v := range defaultCategoryMultipliers {
		m.categoryMultipliers[k] = v
	}
	for k, v := range defaultProfiles {
		m.profiles[k] = v
	}
	return m
}

// WithOverrides returns a copy of m with tier weights, category multipliers and
// type tiers replaced. Keys are matched case-insensitively.
func (m *Model) WithOverrides(tierWeights, categoryMultipliers map[string]float64, typeTiers map[string]string) (*Model, error) {
	out := &Model{
		tierWeights:         make(map[Tier]float64, len(m.tierWeights)),
		categoryMultipliers: make(map[Category]float64, len(m.categoryMultipliers)),
		profiles:            make(map[Type]Profile, len(m.profiles)),
	}
	for k, v := range m.tierWeights {
		out.tierWeights[k] = v
	}
	for k, v := range m.categoryMultipliers {
		out.categoryMultipliers[k] = v
	}
	for k, v := range m.profiles {
		out.profiles[k] = v
	}

	for name, w := range tierWeights {
		tier, err := ParseTier(name)
		if err != nil {
			return nil, err
		}
		if w <= 0 {
			return nil, fmt.Errorf("tier %s weight must be positive, got %f", name, w)
		}
		out.tierWeights[tier] = w
	}
	for name, mult := range categoryMultipliers {
		cat := Category(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := out.categoryMultipliers[cat]; !ok {
			return nil, fmt.Errorf("unknown impact category %q", name)
		}
		if mult <= 0 {
			return nil, fmt.Errorf("category %s multiplier must be positive, got %f", name, mult)
		}
		out.categoryMultipliers[cat] = mult
	}
	for rawType, tierName := range typeTiers {
		tier, err := ParseTier(tierName)
		if err != nil {
			return nil, err
		}
		t := NormalizeType(rawType)
		p, ok := out.profiles[t]
		if !ok {
			p = fallbackProfile
		}
		p.Tier = tier
		p.Known = true
		out.profiles[t] = p
	}
	return out, nil
}

// Profile classifies t. Unknown types take the default branch and report Known=false.
func (m *Model) Profile(t Type) Profile {
	if p, ok := m.profiles[NormalizeType(string(t))]; ok {
		return p
	}
	return fallbackProfile
}

// TierWeight returns the base score of a tier.
func (m *Model) TierWeight(t Tier) float64 {
	if w, ok := m.tierWeights[t]; ok {
		return w
	}
	return m.tierWeights[TierLow]
}

// CategoryMultiplier returns the multiplier of a category; unknown categories are neutral.
func (m *Model) CategoryMultiplier(c Category) float64 {
	if v, ok := m.categoryMultipliers[c]; ok {
		return v
	}
	return 1.0
}

// Category returns the impact category of t.
func (m *Model) Category(t Type) Category {
	return m.Profile(t).Category
}

// BaseScore is tier weight times category multiplier.
func (m *Model) BaseScore(t Type) float64 {
	p := m.Profile(t)
	return m.TierWeight(p.Tier) * m.CategoryMultiplier(p.Category)
}

// Types lists every classified type.
func (m *Model) Types() []Type {
	out := make([]Type, 0, len(m.profiles))
	for t := range m.profiles {
		out = append(out, t)
	}
	return out
}
