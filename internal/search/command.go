package search

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/revimg/internal/metrics"
)

// CommandWorker runs an external extractor process per query and streams its
// stdout, one JSON record per line, until EOF. The image URL is appended as
// the last argument and exported as REVIMG_IMAGE_URL.
type CommandWorker struct {
	Name string
	Path string
	Args []string
	// MaxLineBytes bounds a single record. Zero means 1 MiB.
	MaxLineBytes int
}

func (c *CommandWorker) Provider() string { return c.Name }

func (c *CommandWorker) Search(ctx context.Context, q Query, out chan<- []byte) error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.New("command worker path is empty")
	}
	args := append(append([]string{}, c.Args...), q.ImageURL)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Env = append(os.Environ(),
		"REVIMG_IMAGE_URL="+q.ImageURL,
		"REVIMG_PROVIDER="+c.Name,
		fmt.Sprintf("REVIMG_LIMIT=%d", q.Limit),
	)
	cmd.WaitDelay = 2 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, n: 4096}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Path, err)
	}

	maxLine := c.MaxLineBytes
	if maxLine <= 0 {
		maxLine = 1 << 20
	}
	br := bufio.NewReaderSize(stdout, min(64*1024, maxLine))
	var sendErr, readErr error
read:
	for {
		line, oversized, err := readRecord(br, maxLine)
		if oversized {
			metrics.WorkerMalformed.WithLabelValues(c.Name).Inc()
			log.Warn().Str("provider", c.Name).Int("max_bytes", maxLine).Msg("dropping oversized worker record")
		} else if line = bytes.TrimSpace(line); len(line) > 0 {
			select {
			case out <- line:
			case <-ctx.Done():
				sendErr = ctx.Err()
				break read
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}
	if readErr != nil || sendErr != nil {
		// unblock a child still writing
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()
	if stderr.Len() > 0 {
		log.Debug().Str("provider", c.Name).Str("stderr", stderr.String()).Msg("worker process stderr")
	}
	switch {
	case sendErr != nil:
		return sendErr
	case ctx.Err() != nil:
		return ctx.Err()
	case readErr != nil:
		return fmt.Errorf("read worker output: %w", readErr)
	case waitErr != nil:
		return fmt.Errorf("worker process: %w", waitErr)
	}
	return nil
}

// readRecord reads one newline-terminated line into a fresh slice. A line
// longer than limit is consumed to its end and reported as oversized with no
// data.
func readRecord(br *bufio.Reader, limit int) (line []byte, oversized bool, err error) {
	for {
		var chunk []byte
		chunk, err = br.ReadSlice('\n')
		data := chunk
		if err == nil {
			data = chunk[:len(chunk)-1]
		}
		if !oversized {
			if len(line)+len(data) > limit {
				oversized, line = true, nil
			} else {
				line = append(line, data...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, oversized, err
	}
}

type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	if l.n <= 0 {
		return total, nil
	}
	if len(p) > l.n {
		p = p[:l.n]
	}
	n, err := l.w.Write(p)
	l.n -= n
	if err != nil {
		return n, err
	}
	return total, nil
}
