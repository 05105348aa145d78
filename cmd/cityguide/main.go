package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/city-explorer/internal/config"
	"github.com/zhouzirui/city-explorer/internal/handler/console"
	"github.com/zhouzirui/city-explorer/internal/model/persona"
	"github.com/zhouzirui/city-explorer/internal/service/ai"
)

const markdownWrap = 100

type generatorFactory func(ctx context.Context, cfg config.AIConfig) (console.Generator, error)

func main() {
	quietStderr()
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		glog.Warningf("[main] failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		glog.Flush()
		os.Exit(1)
	}

	if err := run(ctx, cfg, os.Stdin, os.Stdout, newAIGenerator); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		glog.Errorf("[main] session ended with error: %v", err)
	}
}

// quietStderr keeps glog output in its log files so it never interleaves
// with the conversation on the terminal.
func quietStderr() {
	if err := flag.Set("stderrthreshold", "FATAL"); err != nil {
		glog.Warningf("[main] could not raise stderrthreshold: %v", err)
	}
}

func newAIGenerator(ctx context.Context, cfg config.AIConfig) (console.Generator, error) {
	return ai.NewService(ctx, cfg)
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, newGenerator generatorFactory) error {
	if missing := cfg.AI.MissingEnv(); missing != "" {
		printMissingEnv(out, cfg.AI, missing)
		return nil
	}

	lines := console.NewLineReader(in)
	defer lines.Close()

	fmt.Fprint(out, "Enter the city name (or press Enter for generic 'city'): ")
	city, err := lines.ReadLine(ctx)
	switch {
	case ctx.Err() != nil:
		// 城市尚未选定时中断，直接退出，不打印欢迎界面
		fmt.Fprintln(out)
		return nil
	case err != nil && !errors.Is(err, io.EOF):
		return fmt.Errorf("read city name: %w", err)
	}

	guide := loadPersona(cfg.Console.PersonaFile).ForCity(city)

	gen, err := newGenerator(ctx, cfg.AI)
	if err != nil {
		return err
	}

	var opts []console.Option
	if cfg.Console.Markdown {
		renderer, err := console.NewMarkdownRenderer(markdownWrap)
		if err != nil {
			glog.Warningf("[main] markdown renderer unavailable, using plain text: %v", err)
		} else {
			opts = append(opts, console.WithRenderer(renderer))
		}
	}

	loop := console.New(gen, guide, out, opts...)
	loop.PrintBanner()
	return loop.RunLines(ctx, lines)
}

func loadPersona(path string) persona.Persona {
	if strings.TrimSpace(path) == "" {
		return persona.Default()
	}

	p, err := persona.LoadFile(path)
	if err != nil {
		glog.Warningf("[main] could not read persona file, using built-in persona: %v", err)
		return persona.Default()
	}
	glog.Infof("[main] loaded persona %q from %s", p.ID, path)
	return p
}

func printMissingEnv(out io.Writer, cfg config.AIConfig, missing string) {
	fmt.Fprintf(out, "❌ Error: %s not found in environment variables.\n", missing)
	if missing == cfg.CredentialEnv() {
		fmt.Fprintf(out, "Please create a .env file with your %s API key:\n", cfg.ProviderLabel())
		fmt.Fprintf(out, "%s=your_api_key_here\n", missing)
		return
	}
	fmt.Fprintf(out, "Please create a .env file with your %s model name:\n", cfg.ProviderLabel())
	fmt.Fprintf(out, "%s=your_model_here\n", missing)
}
