package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/reportchat/reportchat/internal/client/api"
	"github.com/reportchat/reportchat/internal/client/conversation"
	"github.com/reportchat/reportchat/internal/client/lifecycle"
	"github.com/reportchat/reportchat/internal/client/session"
)

type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	var files fileList
	backendURL := flag.String("backend", "http://localhost:5001", "analysis backend base URL")
	promptText := flag.String("prompt", "", "analysis prompt")
	dummy := flag.Bool("dummy", false, "run the immediately-completed demo analysis")
	interval := flag.Duration("interval", 3*time.Second, "status poll interval")
	model := flag.String("model", "", "chat model override")
	flag.Var(&files, "file", "attach a file by name (repeatable)")
	flag.Parse()

	if !*dummy && strings.TrimSpace(*promptText) == "" {
		log.Fatal("either -prompt or -dummy is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	backend := api.New(*backendURL, 15*time.Second)
	sess := session.New(session.Config{
		Backend: backend,
		Lifecycle: lifecycle.Config{
			PollInterval: *interval,
			OnUpdate: func(s lifecycle.Snapshot) {
				if s.StatusMessage != "" {
					fmt.Printf("[%s] %s\n", s.State, s.StatusMessage)
				}
			},
		},
		Conversation: conversation.Config{
			Model:   *model,
			OnDelta: func(delta string) { fmt.Print(delta) },
		},
	})
	defer sess.Close()

	for _, name := range files {
		var size int64
		if fi, err := os.Stat(name); err == nil {
			size = fi.Size()
		}
		sess.Attach(name, size)
	}

	var err error
	if *dummy {
		err = sess.SubmitDummy(ctx)
	} else {
		err = sess.Submit(ctx, *promptText)
	}
	if err != nil {
		log.Fatalf("submit failed: %v", err)
	}

	snap, err := sess.AwaitReport(ctx)
	if err != nil {
		log.Fatalf("wait failed: %v", err)
	}
	if snap.State != lifecycle.StateSuccess {
		log.Fatalf("analysis failed: %s", snap.ErrorMessage)
	}

	if snap.InlineHTML != "" {
		const out = "report.html"
		if err := os.WriteFile(out, []byte(snap.InlineHTML), 0o644); err != nil {
			log.Fatalf("write report: %v", err)
		}
		fmt.Printf("report saved to %s\n", out)
	} else {
		fmt.Printf("report available at %s\n", snap.ReportURL)
	}

	fmt.Println("chat about the report (ctrl-d to quit):")
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if _, err := sess.Conversation.SendTurn(ctx, line); err != nil {
			fmt.Printf("\nchat error: %v\n", err)
			continue
		}
		fmt.Println()
	}
}
