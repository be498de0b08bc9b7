package app

import (
	"fmt"

	"github.com/hyperifyio/revimg/internal/fetch"
	"github.com/hyperifyio/revimg/internal/search"
)

// buildWorkers turns the worker configuration into search workers. Presets
// are read once and shared by every selector worker.
func buildWorkers(cfg Config, client *fetch.Client) ([]search.Worker, error) {
	var presets map[string]search.Preset
	workers := make([]search.Worker, 0, len(cfg.Workers))
	for _, w := range cfg.Workers {
		switch w.Kind {
		case "file":
			workers = append(workers, &search.FileWorker{Name: w.Name, Path: w.Path})
		case "command":
			workers = append(workers, &search.CommandWorker{Name: w.Name, Path: w.Path, Args: w.Args})
		case "endpoint":
			workers = append(workers, &search.EndpointWorker{Name: w.Name, BaseURL: w.URL, Client: client})
		case "selector":
			if presets == nil {
				p, err := search.LoadPresets(cfg.PresetsPath)
				if err != nil {
					return nil, err
				}
				presets = p
			}
			key := w.Preset
			if key == "" {
				key = w.Name
			}
			preset, ok := presets[key]
			if !ok {
				return nil, fmt.Errorf("worker %s: no preset %q in %s", w.Name, key, cfg.PresetsPath)
			}
			workers = append(workers, &search.SelectorWorker{Name: w.Name, Preset: preset, Client: client})
		default:
			return nil, fmt.Errorf("worker %s: unknown kind %q", w.Name, w.Kind)
		}
	}
	return workers, nil
}

// BuildWorker returns the single configured worker for provider.
func BuildWorker(cfg Config, provider string) (search.Worker, error) {
	for _, w := range cfg.Workers {
		if w.Name != provider {
			continue
		}
		one := cfg
		one.Workers = []WorkerConfig{w}
		ws, err := buildWorkers(one, newFetchClient(cfg))
		if err != nil {
			return nil, err
		}
		return ws[0], nil
	}
	return nil, fmt.Errorf("no worker configured for provider %q", provider)
}
