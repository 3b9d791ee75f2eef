package captcha

import (
	"fmt"
	"sort"
	"sync"
)

// Dialect selects the wire protocol of a backend.
type Dialect int

const (
	// DialectKeyValue is the in.php/res.php protocol with text responses.
	DialectKeyValue Dialect = iota + 1
	// DialectTask is the createTask/getTaskResult JSON protocol.
	DialectTask
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case DialectKeyValue:
		return "key-value"
	case DialectTask:
		return "task"
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

// ProviderDef describes a known solving service.
type ProviderDef struct {
	ID      string
	Name    string
	Dialect Dialect
	BaseURL string
	// TaskNames renames task types for task backends that spell them
	// differently. Ignored for key-value backends.
	TaskNames map[string]string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderDef{}
)

// Register adds a provider definition, replacing any with the same ID.
// Safe to call concurrently with client construction.
func Register(p ProviderDef) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.ID] = p
}

func lookupProvider(id string) (ProviderDef, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[id]
	return p, ok
}

// Providers returns all registered provider definitions sorted by ID.
func Providers() []ProviderDef {
	registryMu.RLock()
	out := make([]ProviderDef, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	registryMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NewProvider creates a Client for a registered provider. cfg.BaseURL, if
// set, overrides the registered endpoint.
func NewProvider(id string, cfg Config) (*Client, error) {
	p, ok := lookupProvider(id)
	if !ok {
		return nil, configError("unknown provider %q", id)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = p.BaseURL
	}
	return newDialectClient(p.ID, p.Dialect, p.TaskNames, cfg)
}

// New creates a Client for an unregistered backend speaking d at
// cfg.BaseURL.
func New(d Dialect, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, configError("BaseURL is required for a custom %s backend", d)
	}
	return newDialectClient("custom", d, nil, cfg)
}

func newDialectClient(id string, d Dialect, taskNames map[string]string, cfg Config) (*Client, error) {
	switch d {
	case DialectKeyValue:
		return newClient(id, cfg, newKVDialect)
	case DialectTask:
		return newClient(id, cfg, newTaskDialect(taskNames))
	}
	return nil, configError("unknown dialect %s", d)
}

func init() {
	Register(ProviderDef{ID: "2captcha", Name: "2Captcha", Dialect: DialectKeyValue, BaseURL: "https://2captcha.com"})
	Register(ProviderDef{ID: "rucaptcha", Name: "RuCaptcha", Dialect: DialectKeyValue, BaseURL: "https://rucaptcha.com"})
	Register(ProviderDef{ID: "anticaptcha", Name: "Anti-Captcha", Dialect: DialectTask, BaseURL: "https://api.anti-captcha.com"})
	Register(ProviderDef{ID: "capmonster", Name: "CapMonster Cloud", Dialect: DialectTask, BaseURL: "https://api.capmonster.cloud"})
	Register(ProviderDef{
		ID:      "capsolver",
		Name:    "CapSolver",
		Dialect: DialectTask,
		BaseURL: "https://api.capsolver.com",
		TaskNames: map[string]string{
			"RecaptchaV2TaskProxyless":           "ReCaptchaV2TaskProxyLess",
			"RecaptchaV2Task":                    "ReCaptchaV2Task",
			"RecaptchaV2EnterpriseTaskProxyless": "ReCaptchaV2EnterpriseTaskProxyLess",
			"RecaptchaV2EnterpriseTask":          "ReCaptchaV2EnterpriseTask",
			"RecaptchaV3TaskProxyless":           "ReCaptchaV3TaskProxyLess",
			"FunCaptchaTaskProxyless":            "FunCaptchaTaskProxyLess",
			"HCaptchaTaskProxyless":              "HCaptchaTaskProxyLess",
			"GeeTestTaskProxyless":               "GeeTestTaskProxyLess",
		},
	})
}
