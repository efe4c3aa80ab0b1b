package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	domain "github.com/reportchat/reportchat/internal/domain/tasks"
)

// Pipeline entry points, resolved relative to ScriptsDir.
const (
	scriptGenerateRaw = "generate_raw_output_json.py"
	scriptGenerateMid = "generate_mid_fromraw.py"
	scriptVisualize   = "visualization.py"
)

// ScriptRunner renders a report by driving the three analysis scripts in
// sequence, the way the demo pipeline ships.
type ScriptRunner struct {
	Python     string // interpreter, default "python"
	ScriptsDir string // directory holding the scripts; also the working dir
	OutputDir  string // rendered reports land here
}

func NewScriptRunner(python, scriptsDir, outputDir string) *ScriptRunner {
	if python == "" {
		python = "python"
	}
	return &ScriptRunner{Python: python, ScriptsDir: scriptsDir, OutputDir: outputDir}
}

func (r *ScriptRunner) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	start := time.Now()
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return domain.RunResult{}, fmt.Errorf("create output dir: %w", err)
	}

	// Intermediate files are namespaced by task id so concurrent tasks
	// cannot trample each other.
	rawFile := fmt.Sprintf("%s_raw_output.json", req.TaskID)
	conclusionFile := fmt.Sprintf("%s_conclusion.json", req.TaskID)
	midFile := fmt.Sprintf("%s_mid_output.json", req.TaskID)
	htmlPath := filepath.Join(r.OutputDir, fmt.Sprintf("%s_visualization.html", req.TaskID))

	progress(req, "Step 1/3: Generating raw JSON...")
	if err := r.runScript(ctx, scriptGenerateRaw,
		"--prompt", req.Prompt,
		"--output", rawFile,
		"--conclusion_output", conclusionFile,
	); err != nil {
		return domain.RunResult{}, err
	}

	progress(req, "Step 2/3: Generating intermediate JSON...")
	if err := r.runScript(ctx, scriptGenerateMid,
		"--raw_input", rawFile,
		"--conclusion_input", conclusionFile,
		"--output", midFile,
	); err != nil {
		return domain.RunResult{}, err
	}

	progress(req, "Step 3/3: Generating visualization...")
	if err := r.runScript(ctx, scriptVisualize,
		"--input", midFile,
		"--output", htmlPath,
	); err != nil {
		return domain.RunResult{}, err
	}

	if _, err := os.Stat(htmlPath); err != nil {
		return domain.RunResult{}, fmt.Errorf("no HTML visualization found at expected path %s", htmlPath)
	}

	return domain.RunResult{
		HTMLPath:   htmlPath,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}

func (r *ScriptRunner) runScript(ctx context.Context, script string, args ...string) error {
	cmdArgs := append([]string{filepath.Join(r.ScriptsDir, script)}, args...)
	cmd := exec.CommandContext(ctx, r.Python, cmdArgs...)
	cmd.Dir = r.ScriptsDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %v: STDOUT: %s STDERR: %s",
			script, err, stdout.String(), stderr.String())
	}
	return nil
}

func progress(req domain.RunRequest, msg string) {
	if req.Progress != nil {
		req.Progress(msg)
	}
}
