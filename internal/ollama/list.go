// Package ollama shells out to the ollama CLI for model information.
package ollama

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Model is one installed model as reported by `ollama list`.
type Model struct {
	Name     string
	ID       string
	Size     string
	Modified string
}

// Client lists installed models by running the ollama CLI.
type Client struct {
	command string
	log     *zap.Logger
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewClient creates a client. An empty command means "ollama" from PATH.
func NewClient(command string, log *zap.Logger) *Client {
	if command == "" {
		command = "ollama"
	}
	return &Client{
		command: command,
		log:     log,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// List returns the installed models sorted case-insensitively by name.
// The CLI talks to the local daemon, so listing only succeeds while the
// service is up.
func (c *Client) List(ctx context.Context) ([]Model, error) {
	start := time.Now()
	out, err := c.run(ctx, c.command, "list")
	if err != nil {
		return nil, fmt.Errorf("failed to run %s list: %w", c.command, err)
	}

	models := parseList(string(out))
	c.log.Debug("listed models",
		zap.Int("count", len(models)),
		zap.Duration("took", time.Since(start)))
	return models, nil
}

// parseList parses `ollama list` table output. The first line is the
// header. SIZE spans two whitespace-split fields ("4.7 GB"); whatever
// follows is the modified column.
func parseList(out string) []Model {
	var models []Model

	for i, line := range strings.Split(out, "\n") {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		m := Model{
			Name: fields[0],
			ID:   fields[1],
			Size: fields[2] + " " + fields[3],
		}
		if len(fields) > 4 {
			m.Modified = strings.Join(fields[4:], " ")
		}
		models = append(models, m)
	}

	sort.Slice(models, func(i, j int) bool {
		return strings.ToLower(models[i].Name) < strings.ToLower(models[j].Name)
	})
	return models
}
