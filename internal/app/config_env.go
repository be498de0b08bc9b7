package app

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// ApplyEnvOverrides overrides cfg fields with environment variables when they
// are set. It runs after the config file so env beats the file, and before
// explicit flags are re-applied so flags stay highest.
func ApplyEnvOverrides(cfg *Config) {
    if cfg == nil { return }

    if v := os.Getenv("PROVIDERS"); v != "" { cfg.Providers = trim(strings.Split(v, ",")) }
    if v := os.Getenv("PRESETS_FILE"); v != "" { cfg.PresetsPath = v }
    if v := os.Getenv("RULE_SERVICE_URL"); v != "" { cfg.RuleServiceURL = v }
    if v := os.Getenv("LISTS_FILE"); v != "" { cfg.ListsPath = v }
    if v := os.Getenv("WHITELIST"); v != "" { cfg.Whitelist = trim(strings.Split(v, ",")) }
    if v := os.Getenv("HARD_BLACKLIST"); v != "" { cfg.HardBlacklist = trim(strings.Split(v, ",")) }
    if v := os.Getenv("PUBLIC_SUFFIX_FILE"); v != "" { cfg.PublicSuffixFile = v }
    if v := os.Getenv("CACHE_DIR"); v != "" { cfg.CacheDir = v }
    if v := os.Getenv("VERIFY_TARGET"); v != "" { cfg.VerifyTarget = v }
    if v := os.Getenv("REDIS_ADDR"); v != "" { cfg.RedisAddr = v }
    if v := os.Getenv("STORE_PATH"); v != "" { cfg.StorePath = v }
    if v := os.Getenv("USER_AGENT"); v != "" { cfg.UserAgent = v }
    if v := os.Getenv("LISTEN_ADDR"); v != "" { cfg.ListenAddr = v }

    // SOURCE_CAPS can be "<perProvider>" or "<perProvider>,<perDomain>"
    if v := strings.TrimSpace(os.Getenv("SOURCE_CAPS")); v != "" {
        parts := strings.Split(v, ",")
        if n, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil && n > 0 {
            cfg.MaxPerProvider = n
        }
        if len(parts) >= 2 {
            if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && n >= 0 {
                cfg.PerDomainCap = n
            }
        }
    }
    setInt := func(dst *int, envKey string) {
        if s := strings.TrimSpace(os.Getenv(envKey)); s != "" {
            if n, err := strconv.Atoi(s); err == nil {
                *dst = n
            }
        }
    }
    setInt(&cfg.ResultLimit, "SEARCH_LIMIT")
    setInt(&cfg.MinTextChars, "MIN_TEXT_CHARS")
    setInt(&cfg.VerifyInboxLimit, "VERIFY_INBOX_LIMIT")
    setInt(&cfg.MinPosterScore, "MIN_POSTER_SCORE")

    setDuration := func(dst *time.Duration, envKey string) {
        if s := os.Getenv(envKey); s != "" {
            if d, err := time.ParseDuration(s); err == nil {
                *dst = d
            }
        }
    }
    setDuration(&cfg.SearchTimeout, "SEARCH_TIMEOUT")
    setDuration(&cfg.CacheMaxAge, "CACHE_MAX_AGE")
    setDuration(&cfg.RefreshInterval, "REFRESH_INTERVAL")
    setDuration(&cfg.VerifyWindow, "VERIFY_WINDOW")

    // Booleans override when env present and truthy/falsey
    setBool := func(dst *bool, envKey string) {
        if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
            switch s {
            case "1", "true", "yes", "on":
                *dst = true
            case "0", "false", "no", "off":
                *dst = false
            }
        }
    }
    setBool(&cfg.CheckLinks, "CHECK_LINKS")
    setBool(&cfg.DropBroken, "DROP_BROKEN")
    setBool(&cfg.FallbackResolver, "FALLBACK_RESOLVER")
    setBool(&cfg.CacheClear, "CACHE_CLEAR")
    setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
    setBool(&cfg.VerifyEnabled, "VERIFY")
    setBool(&cfg.VerifyCleanup, "VERIFY_CLEANUP")
    setBool(&cfg.Verbose, "VERBOSE")
    setBool(&cfg.LogJSON, "LOG_JSON")
}
