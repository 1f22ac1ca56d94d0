package classify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/triage"
)

// CodexClassifier shells out to the codex CLI, feeding the prompt on
// stdin and reading the model's answer from stdout. The --oss variant
// routes through a locally served model instead of the hosted one.
type CodexClassifier struct {
	bin         string
	triageModel string
	replyModel  string
	oss         bool

	// run is swappable in tests.
	run func(ctx context.Context, model, prompt string) (string, error)
}

func NewCodexClassifier(cfg config.ModelConfig) *CodexClassifier {
	c := &CodexClassifier{
		bin:         cfg.CodexBin,
		triageModel: cfg.TriageModel,
		replyModel:  cfg.ReplyModel,
		oss:         cfg.Provider == config.ProviderCodexOSS,
	}
	if c.bin == "" {
		c.bin = "codex"
	}
	c.run = c.exec
	return c
}

// Available checks if the codex binary is on PATH.
func (c *CodexClassifier) Available() bool {
	_, err := exec.LookPath(c.bin)
	return err == nil
}

func (c *CodexClassifier) Classify(ctx context.Context, req BatchRequest) ([]triage.Decision, error) {
	prompt, err := TriagePrompt(req)
	if err != nil {
		return nil, err
	}
	out, err := c.run(ctx, c.triageModel, prompt)
	if err != nil {
		return nil, err
	}
	return decodeDecisions(out)
}

func (c *CodexClassifier) ToneProfile(ctx context.Context, req ToneRequest) (ToneResult, error) {
	prompt, err := TonePrompt(req)
	if err != nil {
		return ToneResult{}, err
	}
	out, err := c.run(ctx, c.replyModel, prompt)
	if err != nil {
		return ToneResult{}, err
	}
	return decodeTone(out)
}

// exec runs `codex exec -` with the prompt on stdin. The sandbox stays
// read-only; codex never needs to touch the filesystem for this.
func (c *CodexClassifier) exec(ctx context.Context, model, prompt string) (string, error) {
	args := []string{"exec", "--skip-git-repo-check", "--sandbox", "read-only"}
	if model != "" {
		args = append(args, "--model", model)
	}
	if c.oss {
		args = append(args, "--oss")
	}
	args = append(args, "-")

	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Stdin = strings.NewReader(prompt)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			return "", fmt.Errorf("%s exec: %s", c.bin, stderr)
		}
		return "", fmt.Errorf("%s exec: %w", c.bin, err)
	}
	// Codex prints a session banner before the answer; the JSON
	// extractor downstream ignores it.
	return strings.TrimSpace(string(out)), nil
}
