package app

import (
    "bufio"
    "errors"
    "fmt"
    "os"
    "strings"
)

// LoadEnvFiles loads dotenv files of KEY=VALUE pairs into the process
// environment so POSTER_/OBSERVER_ credentials can live outside the config
// file. Later files override earlier ones; variables already set in the real
// environment are kept unless override is true.
func LoadEnvFiles(override bool, paths ...string) error {
    for _, p := range paths {
        if strings.TrimSpace(p) == "" {
            continue
        }
        if err := loadEnvFile(p, override); err != nil {
            if errors.Is(err, os.ErrNotExist) {
                continue
            }
            return err
        }
    }
    return nil
}

func loadEnvFile(path string, override bool) error {
    f, err := os.Open(path)
    if err != nil {
        return err
    }
    defer f.Close()

    preset := map[string]bool{}
    if !override {
        for _, kv := range os.Environ() {
            if k, _, ok := strings.Cut(kv, "="); ok {
                preset[k] = true
            }
        }
    }

    scanner := bufio.NewScanner(f)
    lineNo := 0
    for scanner.Scan() {
        lineNo++
        line := strings.TrimSpace(scanner.Text())
        if line == "" || strings.HasPrefix(line, "#") {
            continue
        }
        line = strings.TrimPrefix(line, "export ")
        key, val, ok := strings.Cut(line, "=")
        key = strings.TrimSpace(key)
        if !ok || key == "" {
            return fmt.Errorf("%s:%d: expected KEY=VALUE", path, lineNo)
        }
        val = strings.TrimSpace(val)
        if len(val) >= 2 {
            if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
                val = val[1 : len(val)-1]
            }
        }
        if preset[key] && os.Getenv(key) != "" {
            continue
        }
        _ = os.Setenv(key, val)
    }
    return scanner.Err()
}
