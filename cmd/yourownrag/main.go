package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/above-avg/YourOwnRAG/internal/apiclient"
	"github.com/above-avg/YourOwnRAG/internal/config"
	"github.com/above-avg/YourOwnRAG/internal/docs"
	"github.com/above-avg/YourOwnRAG/internal/localui"
	"github.com/above-avg/YourOwnRAG/internal/lockfile"
	"github.com/above-avg/YourOwnRAG/internal/monitor"
	"github.com/above-avg/YourOwnRAG/internal/settings"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "chat":
		chatCmd(os.Args[2:])
	case "docs":
		docsCmd(os.Args[2:])
	case "settings":
		settingsCmd(os.Args[2:])
	case "serve":
		serveCmd(os.Args[2:])
	case "doctor":
		doctorCmd(os.Args[2:])
	case "version":
		fmt.Printf("yourownrag %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `yourownrag

Usage:
  yourownrag chat [flags]
  yourownrag docs <list|upload|rm> [flags] [args]
  yourownrag settings <show|set|reset> [flags] [args]
  yourownrag serve [flags]
  yourownrag doctor [flags]
  yourownrag version

Commands:
  chat        Ask questions about your documents, one-shot or as a REPL.
  docs        List, upload or delete indexed documents.
  settings    Show or change the persisted settings record.
  serve       Serve the browser UI on the loopback interface.
  doctor      Check the backend, the state directory and the host.
  version     Print build information.

`)
}

func chatCmd(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	question := fs.String("question", "", "Ask a single question and exit (default: interactive)")
	_ = fs.Parse(args)

	ctx := context.Background()
	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		fatal(err)
	}
	defer a.Close()

	if q := strings.TrimSpace(*question); q != "" {
		reply, sent := a.session.Send(ctx, q)
		if !sent {
			fatal(fmt.Errorf("question was not sent"))
		}
		fmt.Println(reply.Content)
		return
	}

	fmt.Printf("Session %s. Type a question, /clear to reset the transcript, /quit to exit.\n", a.session.SessionID())
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/clear":
			a.session.Clear()
			fmt.Println("Transcript cleared.")
			continue
		}

		reply, sent := a.session.Send(ctx, line)
		if !sent {
			continue
		}
		fmt.Println(reply.Content)
	}
}

func docsCmd(args []string) {
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("docs "+sub, flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	query := fs.String("query", "", "Filter listed documents by filename substring (list only)")
	_ = fs.Parse(rest)

	ctx := context.Background()
	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		fatal(err)
	}
	defer a.Close()

	switch sub {
	case "list":
		if err := a.docs.Refresh(ctx); err != nil {
			fatal(err)
		}
		list := a.docs.Filter(*query)
		if len(list) == 0 {
			fmt.Println("No documents.")
			return
		}
		for _, d := range list {
			fmt.Printf("%-12s %s\n", d.FileID, d.Filename)
		}
	case "upload":
		paths := fs.Args()
		if len(paths) == 0 {
			fmt.Fprintf(os.Stderr, "usage: yourownrag docs upload [flags] FILE...\n")
			os.Exit(2)
		}
		uploadDocs(ctx, a, paths)
	case "rm":
		ids := fs.Args()
		if len(ids) != 1 {
			fmt.Fprintf(os.Stderr, "usage: yourownrag docs rm [flags] FILE_ID\n")
			os.Exit(2)
		}
		if err := a.docs.Remove(ctx, ids[0]); err != nil {
			fatal(err)
		}
		fmt.Printf("Deleted %s\n", ids[0])
	default:
		printUsage()
		os.Exit(2)
	}
}

func uploadDocs(ctx context.Context, a *app, paths []string) {
	inputs := make([]docs.FileInput, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(filepath.Clean(p))
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		inputs = append(inputs, docs.FileInput{Name: filepath.Base(p), Data: f})
	}

	failed := 0
	for _, res := range a.docs.Submit(ctx, inputs) {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", res.Filename, res.Err)
			continue
		}
		fmt.Printf("%s uploaded (file_id %s)\n", res.Filename, res.FileID)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func settingsCmd(args []string) {
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("settings "+sub, flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	_ = fs.Parse(rest)

	ctx := context.Background()
	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		fatal(err)
	}
	defer a.Close()

	switch sub {
	case "show":
		printSettings(a)
	case "set":
		kv := fs.Args()
		if len(kv) != 2 {
			fmt.Fprintf(os.Stderr, "usage: yourownrag settings set [flags] KEY VALUE\nKeys: %s\n",
				strings.Join(settings.Keys(), ", "))
			os.Exit(2)
		}
		if _, err := a.settings.Update(ctx, kv[0], kv[1]); err != nil {
			fatal(err)
		}
		printSettings(a)
	case "reset":
		if _, err := a.settings.Reset(ctx); err != nil {
			fatal(err)
		}
		printSettings(a)
	default:
		printUsage()
		os.Exit(2)
	}
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	_ = fs.Parse(args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		fatal(err)
	}
	defer a.Close()

	// Warm the document list so the UI does not open empty; the backend being
	// down is not fatal here, the health endpoint will say so.
	if err := a.docs.Refresh(ctx); err != nil {
		a.log.Warn("initial document list fetch failed", "error", err)
	}

	srv, err := localui.New(localui.Options{
		Logger:   a.log,
		Port:     a.cfg.EffectiveLocalUIPort(),
		Session:  a.session,
		Docs:     a.docs,
		Settings: a.settings,
		Health:   a.client,
		Models:   a.models,
		Version:  Version,
	})
	if err != nil {
		fatal(err)
	}
	if err := srv.Start(ctx); err != nil {
		fatal(err)
	}
	defer srv.Close()

	printWelcomeBanner(os.Stdout, welcomeBannerOptions{
		Version: Version,
		Port:    srv.Port(),
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
}

func doctorCmd(args []string) {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	timeout := fs.Duration("timeout", 10*time.Second, "Backend probe timeout")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg, err := config.LoadOrInit(filepath.Clean(*cfgPath))
	if err != nil {
		fatal(err)
	}
	stateDir := cfg.EffectiveStateDir(filepath.Clean(*cfgPath))

	fmt.Printf("Config:    %s\n", filepath.Clean(*cfgPath))
	fmt.Printf("State dir: %s\n", stateDir)
	fmt.Printf("Backend:   %s\n", cfg.BackendBaseURL)

	if pid := lockfile.HolderPID(stateDir); pid != 0 && pid != os.Getpid() {
		fmt.Printf("Lock:      held by pid %d\n", pid)
	} else {
		fmt.Printf("Lock:      free\n")
	}

	client, err := apiclient.New(cfg.BackendBaseURL, *timeout)
	if err != nil {
		fatal(err)
	}
	if h, err := client.Health(ctx); err != nil {
		fmt.Printf("Health:    unreachable (%v)\n", err)
	} else {
		fmt.Printf("Health:    %s\n", h.Status)
	}

	snap := monitor.NewService(nil, stateDir).Snapshot(ctx)
	fmt.Printf("Host:      %s, %d cores, cpu %.1f%%\n", snap.Platform, snap.CPUCores, snap.CPUUsagePercent)
	if snap.StateDiskTotalBytes > 0 {
		fmt.Printf("Disk:      %.1f%% used, %.1f GiB free\n",
			snap.StateDiskUsedPct, float64(snap.StateDiskFreeBytes)/(1<<30))
	}
	fmt.Printf("Process:   rss %.1f MiB\n", float64(snap.ProcessRSSBytes)/(1<<20))
}

func printSettings(a *app) {
	cur := a.settings.Current()
	fmt.Printf("defaultModel          = %s\n", cur.DefaultModel)
	fmt.Printf("responseTemperature   = %s\n", cur.ResponseTemperature)
	fmt.Printf("maxResponseLength     = %d\n", cur.MaxResponseLength)
	fmt.Printf("streamResponses       = %t\n", cur.StreamResponses)
	fmt.Printf("chunkSize             = %d\n", cur.ChunkSize)
	fmt.Printf("chunkOverlap          = %d\n", cur.ChunkOverlap)
	fmt.Printf("maxDocumentsRetrieved = %s\n", cur.MaxDocumentsRetrieved)
	fmt.Printf("autoIndexDocuments    = %t\n", cur.AutoIndexDocuments)
	fmt.Printf("animations            = %t\n", cur.Animations)
	fmt.Printf("soundEffects          = %t\n", cur.SoundEffects)
	fmt.Printf("compactMode           = %t\n", cur.CompactMode)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
