package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hyperifyio/revimg/internal/app"
	"github.com/hyperifyio/revimg/internal/search"
)

// debugworker runs one configured worker against an image URL and prints
// every raw record it emits, marking the ones the orchestrator would drop.
//
//	debugworker <config.yaml> <provider> <image-url>
func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: debugworker <config> <provider> <image-url>")
		os.Exit(1)
	}
	fc, err := app.LoadConfigFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	cfg := app.DefaultConfig()
	app.ApplyFileConfig(&cfg, fc)
	w, err := app.BuildWorker(cfg, os.Args[2])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	out := make(chan []byte)
	done := make(chan error, 1)
	go func() {
		done <- w.Search(ctx, search.Query{ImageURL: os.Args[3]}, out)
		close(out)
	}()
	n := 0
	for raw := range out {
		n++
		if _, err := search.DecodeRecord(w.Provider(), raw); err != nil {
			fmt.Printf("%d. DROP %v: %s\n", n, err, raw)
			continue
		}
		fmt.Printf("%d. %s\n", n, raw)
	}
	fmt.Println("err:", <-done)
}
