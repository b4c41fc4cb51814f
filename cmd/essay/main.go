package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/dgallion1/essayist/internal/app"
	"github.com/dgallion1/essayist/internal/config"
	"github.com/dgallion1/essayist/internal/essay"
	"github.com/dgallion1/essayist/internal/source"
)

type cliFlags struct {
	output  string
	path    string
	acct    string
	repo    string
	ref     string
	refresh bool
	offline bool
	records bool
	verbose bool
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, []string, error) {
	fs := flag.NewFlagSet("essay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &cliFlags{}

	fs.StringVarP(&f.output, "output", "o", "", "output file (default stdout)")
	fs.StringVarP(&f.path, "path", "p", "", "essay path used for ids and links (default from file name)")
	fs.StringVar(&f.acct, "acct", "", "repository account for links and manifests (default GH_ACCT)")
	fs.StringVar(&f.repo, "repo", "", "repository name for links and manifests (default GH_REPO)")
	fs.StringVar(&f.ref, "ref", "", "repository ref (default GH_REF)")
	fs.BoolVar(&f.refresh, "refresh", false, "ignore cached knowledge graph results")
	fs.BoolVar(&f.offline, "offline", false, "skip knowledge graph and manifest services")
	fs.BoolVar(&f.records, "records", false, "print the markup records as JSON instead of HTML")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log pipeline progress to stderr")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: essay [flags] <file.md | - | acct/repo/path>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	f, rest, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("expected one input, got %d", len(rest))
	}

	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	}))

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if f.ref == "" {
		f.ref = cfg.GHRef
	}

	var (
		tr  *essay.Transformer
		src source.Source
	)
	if f.offline {
		tr = essay.New(essay.Options{Log: log})
	} else {
		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		tr = a.Transformer
		src = a.Source
	}

	md, essayPath, err := readInput(ctx, rest[0], f, src, stdin)
	if err != nil {
		return err
	}
	if f.path != "" {
		essayPath = f.path
	}
	if f.acct == "" && f.repo == "" {
		f.acct, f.repo = cfg.GHAcct, cfg.GHRepo
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TransformTimeout)
	defer cancel()
	res, err := tr.Execute(ctx, essay.Request{
		Markdown: md,
		Path:     essayPath,
		Site:     essay.Site{Acct: f.acct, Repo: f.repo, Ref: f.ref},
		Refresh:  f.refresh,
	})
	if err != nil {
		return err
	}
	for _, note := range res.Run.Notes {
		log.Warn("degraded", "note", note)
	}

	out := stdout
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		out = file
	}

	if f.records {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Records)
	}
	_, err = io.WriteString(out, res.HTML)
	return err
}

// readInput loads Markdown from a file, stdin ("-") or, for an
// "acct/repo/path" argument that is not a local file, the configured source.
func readInput(ctx context.Context, arg string, f *cliFlags, src source.Source, stdin io.Reader) ([]byte, string, error) {
	if arg == "-" {
		md, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("read stdin: %w", err)
		}
		return md, "/stdin", nil
	}

	md, err := os.ReadFile(arg)
	if err == nil {
		return md, source.EssayPath(filepath.Base(arg)), nil
	}
	if !errors.Is(err, os.ErrNotExist) || src == nil {
		return nil, "", fmt.Errorf("read %s: %w", arg, err)
	}

	parts := strings.SplitN(strings.Trim(arg, "/"), "/", 3)
	if len(parts) < 2 {
		return nil, "", fmt.Errorf("read %s: %w", arg, err)
	}
	p := "/"
	if len(parts) == 3 {
		p += parts[2]
	}
	if f.acct == "" {
		f.acct = parts[0]
	}
	if f.repo == "" {
		f.repo = parts[1]
	}
	doc, err := src.Fetch(ctx, parts[0], parts[1], f.ref, p)
	if err != nil {
		return nil, "", err
	}
	return doc.Markdown, doc.Path, nil
}
