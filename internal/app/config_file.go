package app

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags/env.
type FileConfig struct {
    Providers []string       `yaml:"providers" json:"providers"`
    Workers   []WorkerConfig `yaml:"workers" json:"workers"`
    Presets   string         `yaml:"presets" json:"presets"`

    Search struct {
        Timeout time.Duration `yaml:"timeout" json:"timeout"`
        Limit   int           `yaml:"limit" json:"limit"`
    } `yaml:"search" json:"search"`

    Max struct {
        PerProvider int `yaml:"perProvider" json:"perProvider"`
        PerDomain   int `yaml:"perDomain" json:"perDomain"`
    } `yaml:"max" json:"max"`

    Min struct {
        TextChars int `yaml:"textChars" json:"textChars"`
    } `yaml:"min" json:"min"`

    Links struct {
        Check      bool `yaml:"check" json:"check"`
        DropBroken bool `yaml:"dropBroken" json:"dropBroken"`
    } `yaml:"links" json:"links"`

    Spam struct {
        Service         string        `yaml:"service" json:"service"`
        Lists           string        `yaml:"lists" json:"lists"`
        Whitelist       []string      `yaml:"whitelist" json:"whitelist"`
        HardBlacklist   []string      `yaml:"hardBlacklist" json:"hardBlacklist"`
        PublicSuffix    string        `yaml:"publicSuffix" json:"publicSuffix"`
        Fallback        bool          `yaml:"fallback" json:"fallback"`
        RefreshInterval time.Duration `yaml:"refreshInterval" json:"refreshInterval"`
    } `yaml:"spam" json:"spam"`

    Cache struct {
        Dir         string        `yaml:"dir" json:"dir"`
        MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
        Clear       bool          `yaml:"clear" json:"clear"`
        StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
    } `yaml:"cache" json:"cache"`

    Verify *struct {
        Enable     *bool         `yaml:"enable" json:"enable"`
        Target     string        `yaml:"target" json:"target"`
        Window     time.Duration `yaml:"window" json:"window"`
        InboxLimit int           `yaml:"inboxLimit" json:"inboxLimit"`
        MinScore   int           `yaml:"minScore" json:"minScore"`
        Cleanup    bool          `yaml:"cleanup" json:"cleanup"`
        Redis      string        `yaml:"redis" json:"redis"`
    } `yaml:"verify" json:"verify"`

    Store     string `yaml:"store" json:"store"`
    UserAgent string `yaml:"userAgent" json:"userAgent"`
    Listen    string `yaml:"listen" json:"listen"`
    Verbose   bool   `yaml:"verbose" json:"verbose"`
    LogJSON   bool   `yaml:"logJSON" json:"logJSON"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
    var fc FileConfig
    b, err := os.ReadFile(path)
    if err != nil {
        return fc, err
    }
    switch ext := filepath.Ext(path); ext {
    case ".yaml", ".yml":
        if err := yaml.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse yaml: %w", err)
        }
    case ".json":
        if err := json.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse json: %w", err)
        }
    default:
        if err := yaml.Unmarshal(b, &fc); err != nil {
            if jerr := json.Unmarshal(b, &fc); jerr != nil {
                return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
            }
        }
    }
    return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are still unset or at their default. Flags should already have been parsed;
// this lets a file supply defaults while preserving explicit flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
    if cfg == nil { return }
    def := DefaultConfig()

    if len(cfg.Providers) == 0 && len(fc.Providers) > 0 { cfg.Providers = trim(fc.Providers) }
    if len(cfg.Workers) == 0 && len(fc.Workers) > 0 { cfg.Workers = fc.Workers }
    if cfg.PresetsPath == "" && fc.Presets != "" { cfg.PresetsPath = fc.Presets }

    if (cfg.SearchTimeout == 0 || cfg.SearchTimeout == def.SearchTimeout) && fc.Search.Timeout > 0 { cfg.SearchTimeout = fc.Search.Timeout }
    if cfg.ResultLimit == 0 && fc.Search.Limit > 0 { cfg.ResultLimit = fc.Search.Limit }

    if (cfg.MaxPerProvider == 0 || cfg.MaxPerProvider == def.MaxPerProvider) && fc.Max.PerProvider > 0 { cfg.MaxPerProvider = fc.Max.PerProvider }
    if cfg.PerDomainCap == 0 && fc.Max.PerDomain > 0 { cfg.PerDomainCap = fc.Max.PerDomain }
    if cfg.MinTextChars == 0 && fc.Min.TextChars > 0 { cfg.MinTextChars = fc.Min.TextChars }
    if !cfg.CheckLinks && fc.Links.Check { cfg.CheckLinks = true }
    if !cfg.DropBroken && fc.Links.DropBroken { cfg.DropBroken = true }

    if cfg.RuleServiceURL == "" && fc.Spam.Service != "" { cfg.RuleServiceURL = fc.Spam.Service }
    if cfg.ListsPath == "" && fc.Spam.Lists != "" { cfg.ListsPath = fc.Spam.Lists }
    if len(cfg.Whitelist) == 0 && len(fc.Spam.Whitelist) > 0 { cfg.Whitelist = trim(fc.Spam.Whitelist) }
    if len(cfg.HardBlacklist) == 0 && len(fc.Spam.HardBlacklist) > 0 { cfg.HardBlacklist = trim(fc.Spam.HardBlacklist) }
    if cfg.PublicSuffixFile == "" && fc.Spam.PublicSuffix != "" { cfg.PublicSuffixFile = fc.Spam.PublicSuffix }
    if !cfg.FallbackResolver && fc.Spam.Fallback { cfg.FallbackResolver = true }
    if (cfg.RefreshInterval == 0 || cfg.RefreshInterval == def.RefreshInterval) && fc.Spam.RefreshInterval > 0 { cfg.RefreshInterval = fc.Spam.RefreshInterval }

    if (cfg.CacheDir == "" || cfg.CacheDir == def.CacheDir) && fc.Cache.Dir != "" { cfg.CacheDir = fc.Cache.Dir }
    if (cfg.CacheMaxAge == 0 || cfg.CacheMaxAge == def.CacheMaxAge) && fc.Cache.MaxAge > 0 { cfg.CacheMaxAge = fc.Cache.MaxAge }
    if !cfg.CacheClear && fc.Cache.Clear { cfg.CacheClear = true }
    if !cfg.CacheStrictPerms && fc.Cache.StrictPerms { cfg.CacheStrictPerms = true }

    if v := fc.Verify; v != nil {
        if v.Enable != nil && !cfg.VerifyEnabled { cfg.VerifyEnabled = *v.Enable }
        if cfg.VerifyTarget == "" && v.Target != "" { cfg.VerifyTarget = v.Target }
        if (cfg.VerifyWindow == 0 || cfg.VerifyWindow == def.VerifyWindow) && v.Window > 0 { cfg.VerifyWindow = v.Window }
        if cfg.VerifyInboxLimit == 0 && v.InboxLimit > 0 { cfg.VerifyInboxLimit = v.InboxLimit }
        if cfg.MinPosterScore == 0 && v.MinScore > 0 { cfg.MinPosterScore = v.MinScore }
        if !cfg.VerifyCleanup && v.Cleanup { cfg.VerifyCleanup = true }
        if cfg.RedisAddr == "" && v.Redis != "" { cfg.RedisAddr = v.Redis }
    }

    if (cfg.StorePath == "" || cfg.StorePath == def.StorePath) && fc.Store != "" { cfg.StorePath = fc.Store }
    if (cfg.UserAgent == "" || cfg.UserAgent == def.UserAgent) && fc.UserAgent != "" { cfg.UserAgent = fc.UserAgent }
    if (cfg.ListenAddr == "" || cfg.ListenAddr == def.ListenAddr) && fc.Listen != "" { cfg.ListenAddr = fc.Listen }
    if !cfg.Verbose && fc.Verbose { cfg.Verbose = true }
    if !cfg.LogJSON && fc.LogJSON { cfg.LogJSON = true }
}

// ValidateConfig reports configuration that cannot produce a working run.
// An empty provider list is filled from the worker names first.
func ValidateConfig(cfg *Config) error {
    if cfg == nil { return errors.New("nil config") }
    if len(cfg.Providers) == 0 {
        for _, w := range cfg.Workers {
            if name := strings.TrimSpace(w.Name); name != "" {
                cfg.Providers = append(cfg.Providers, name)
            }
        }
    }
    if len(cfg.Providers) == 0 {
        return errors.New("no providers configured")
    }
    seen := make(map[string]bool, len(cfg.Providers))
    for _, p := range cfg.Providers {
        if p == "" { return errors.New("empty provider name") }
        if seen[p] { return fmt.Errorf("duplicate provider %q", p) }
        seen[p] = true
    }
    for i, w := range cfg.Workers {
        if !seen[w.Name] {
            return fmt.Errorf("worker %d: provider %q is not configured", i, w.Name)
        }
        switch w.Kind {
        case "file", "command":
            if strings.TrimSpace(w.Path) == "" { return fmt.Errorf("worker %s: path is required", w.Name) }
        case "endpoint":
            if strings.TrimSpace(w.URL) == "" { return fmt.Errorf("worker %s: url is required", w.Name) }
        case "selector":
            if cfg.PresetsPath == "" { return fmt.Errorf("worker %s: presets file is required", w.Name) }
        default:
            return fmt.Errorf("worker %s: unknown kind %q", w.Name, w.Kind)
        }
    }
    switch {
    case cfg.ResultLimit < 0:
        return errors.New("result limit must not be negative")
    case cfg.MaxPerProvider < 0:
        return errors.New("max per provider must not be negative")
    case cfg.PerDomainCap < 0:
        return errors.New("per-domain cap must not be negative")
    case cfg.MinTextChars < 0:
        return errors.New("min text chars must not be negative")
    case cfg.VerifyInboxLimit < 0:
        return errors.New("inbox limit must not be negative")
    case cfg.SearchTimeout < 0 || cfg.CacheMaxAge < 0 || cfg.VerifyWindow < 0:
        return errors.New("durations must not be negative")
    }
    if cfg.VerifyEnabled && strings.TrimSpace(cfg.VerifyTarget) == "" {
        return errors.New("verification enabled without a target")
    }
    return nil
}

func trim(values []string) []string {
    out := make([]string, 0, len(values))
    for _, v := range values {
        if v = strings.TrimSpace(v); v != "" {
            out = append(out, v)
        }
    }
    return out
}
