// Package testtree assembles a servable test tree from an upstream test
// corpus and serves it over HTTP.
package testtree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/duckduckgo/shared-web-tests/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ConfigFileName is written at the root of every assembled tree.
const ConfigFileName = "config.json"

// Plan lists what goes into the tree. Paths in Files and Dirs are relative to
// SourceRoot and keep their relative location under OutputDir.
type Plan struct {
	SourceRoot      string
	OutputDir       string
	Files           []string
	Dirs            []string
	PatchFile       string
	ManifestCommand []string
}

// PlanFromConfig converts build settings into a Plan.
func PlanFromConfig(cfg config.BuildConfig) Plan {
	return Plan{
		SourceRoot:      cfg.SourceRoot,
		OutputDir:       cfg.OutputDir,
		Files:           cfg.Files,
		Dirs:            cfg.Dirs,
		PatchFile:       cfg.PatchFile,
		ManifestCommand: cfg.ManifestCommand,
	}
}

// Result summarises an assembled tree.
type Result struct {
	OutputDir  string
	Copied     int
	Revision   string
	ConfigPath string
}

// TreeConfig is the content of config.json.
type TreeConfig struct {
	DocRoot          string `json:"doc_root"`
	UpstreamRevision string `json:"upstream_revision,omitempty"`
}

// Assembler builds test trees.
type Assembler struct {
	logger             *zap.Logger
	execCommandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewAssembler creates an Assembler that runs external tools with os/exec.
func NewAssembler(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		logger:             logger.Named("assembler"),
		execCommandContext: exec.CommandContext,
	}
}

// Assemble copies files and directories, applies the patch, writes
// config.json and finally runs the manifest command inside the tree.
func (a *Assembler) Assemble(ctx context.Context, plan Plan) (*Result, error) {
	if plan.SourceRoot == "" || plan.OutputDir == "" {
		return nil, fmt.Errorf("source root and output dir are required")
	}
	outDir, err := filepath.Abs(plan.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	res := &Result{OutputDir: outDir}

	for _, rel := range plan.Files {
		if err := copyFile(filepath.Join(plan.SourceRoot, rel), filepath.Join(outDir, rel)); err != nil {
			return nil, err
		}
		res.Copied++
	}
	for _, rel := range plan.Dirs {
		n, err := copyDir(filepath.Join(plan.SourceRoot, rel), filepath.Join(outDir, rel))
		if err != nil {
			return nil, err
		}
		res.Copied += n
	}
	a.logger.Info("Copied corpus files.", zap.Int("files", res.Copied), zap.String("output_dir", outDir))

	if plan.PatchFile != "" {
		if err := a.applyPatch(ctx, outDir, plan.PatchFile); err != nil {
			return nil, err
		}
	}

	res.Revision, err = upstreamRevision(plan.SourceRoot)
	if err != nil {
		return nil, err
	}
	res.ConfigPath = filepath.Join(outDir, ConfigFileName)
	if err := writeTreeConfig(res.ConfigPath, TreeConfig{DocRoot: outDir, UpstreamRevision: res.Revision}); err != nil {
		return nil, err
	}

	if len(plan.ManifestCommand) > 0 {
		if err := a.run(ctx, outDir, plan.ManifestCommand[0], plan.ManifestCommand[1:]...); err != nil {
			return nil, fmt.Errorf("manifest generation failed: %w", err)
		}
	}
	return res, nil
}

func (a *Assembler) applyPatch(ctx context.Context, outDir, patchFile string) error {
	abs, err := filepath.Abs(patchFile)
	if err != nil {
		return fmt.Errorf("failed to resolve patch file: %w", err)
	}
	a.logger.Info("Applying patch with 'git apply'.", zap.String("patch", abs))
	if err := a.run(ctx, outDir, "git", "apply", "--ignore-whitespace", abs); err != nil {
		return fmt.Errorf("failed to apply patch: %w", err)
	}
	return nil
}

func (a *Assembler) run(ctx context.Context, dir, name string, args ...string) error {
	a.logger.Debug("Executing command", zap.String("command", strings.Join(append([]string{name}, args...), " ")))
	cmd := a.execCommandContext(ctx, name, args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command '%s' failed: %w\nOutput: %s", name, err, string(output))
	}
	return nil
}

// upstreamRevision returns the HEAD commit of the git repository containing
// root, or "" when root is not inside one.
func upstreamRevision(root string) (string, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open corpus repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read corpus HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func writeTreeConfig(path string, cfg TreeConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ConfigFileName, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ConfigFileName, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// copyDir merges src into dst, overwriting files that already exist.
func copyDir(src, dst string) (int, error) {
	copied := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("failed to copy directory %s: %w", src, err)
	}
	return copied, nil
}
