package spam

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticLists are the locally maintained lists that never come from the
// rule service.
type StaticLists struct {
	Hard      Set
	Whitelist Set
}

type staticFile struct {
	HardBlacklist []string `yaml:"hard_blacklist"`
	Whitelist     []string `yaml:"whitelist"`
}

// LoadStatic reads a YAML file with hard_blacklist and whitelist keys and
// merges the extra domains into it. An empty path yields only the extras.
func LoadStatic(path string, extraHard, extraWhite []string) (StaticLists, error) {
	var f staticFile
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return StaticLists{}, fmt.Errorf("open static lists %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &f); err != nil {
			return StaticLists{}, fmt.Errorf("unmarshal static lists %s: %w", path, err)
		}
	}
	return StaticLists{
		Hard:      domainSet(append(f.HardBlacklist, extraHard...)),
		Whitelist: domainSet(append(f.Whitelist, extraWhite...)),
	}, nil
}

func domainSet(values []string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		if d := NormalizeDomain(v); d != "" {
			s[d] = struct{}{}
		}
	}
	return s
}
