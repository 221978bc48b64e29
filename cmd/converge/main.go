// Command converge runs a single task through the agent against a live
// provider, rendering the event stream as it arrives.
//
// Usage:
//
//	converge -workspace /path/to/dir -model claude-sonnet-4-5 "your prompt"
//
// Provider API keys are read from the environment (a .env file in the
// working directory is honored).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"

	"github.com/martinemde/converge/agent"
	"github.com/martinemde/converge/llm"
)

func main() {
	_ = godotenv.Load()

	var (
		workspace = flag.String("workspace", "", "absolute workspace directory (required)")
		provider  = flag.String("provider", "anthropic", "LLM provider")
		model     = flag.String("model", "claude-sonnet-4-5", "model ID")
		maxTokens = flag.Int("max-tokens", 4096, "max output tokens per turn")
		streaming = flag.Bool("stream", true, "stream model output")
	)
	flag.Parse()

	if *workspace == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: converge -workspace DIR [flags] \"prompt\"")
		os.Exit(2)
	}

	client, err := llm.NewGollmClient(*provider, *model)
	if err != nil {
		pterm.Error.Printfln("create model client: %v", err)
		os.Exit(1)
	}

	a, err := agent.New(agent.Config{
		ModelID:      *model,
		MaxTokens:    *maxTokens,
		Temperature:  0.7,
		WorkspaceDir: *workspace,
		AllowedTools: []string{"fs_read", "fs_write", "fs_list", "grep", "find", "execute_bash"},
		Streaming:    *streaming,
		Pricing: map[string]agent.ModelPricing{
			"claude-sonnet-4-5": {InputPer1K: 0.003, OutputPer1K: 0.015, Currency: "USD"},
			"claude-opus-4-6":   {InputPer1K: 0.015, OutputPer1K: 0.075, Currency: "USD"},
		},
	}, client)
	if err != nil {
		pterm.Error.Printfln("configure agent: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		renderEvents(a.Events())
	}()

	task := agent.NewTask(flag.Arg(0))
	result := a.Execute(ctx, task)
	a.Close()
	wg.Wait()

	pterm.DefaultSection.Println("Result")
	pterm.Info.Printfln("status: %s", result.Status)
	if result.Error != "" {
		pterm.Error.Printfln("error: %s", result.Error)
	}
	fmt.Println(result.Summary)
	pterm.Info.Printfln("tokens: %d in / %d out / %d total",
		result.TokenStats.InputTokens, result.TokenStats.OutputTokens, result.TokenStats.TotalTokens)
	pterm.Info.Printfln("cost: %.6f %s", result.Cost.TotalCost, result.Cost.Currency)

	if result.Status == agent.StatusFailed {
		os.Exit(1)
	}
}

// renderEvents prints the live view: streamed text deltas inline, tool
// calls as they start and finish.
func renderEvents(events <-chan agent.Event) {
	inText := false
	for event := range events {
		switch event.Kind {
		case agent.EventTextDelta:
			if delta, ok := event.Data["delta"].(string); ok {
				fmt.Print(delta)
				inText = true
			}
		case agent.EventToolCallStart:
			if inText {
				fmt.Println()
				inText = false
			}
			pterm.Info.Printfln("tool: %v", event.Data["tool"])
		case agent.EventToolCallEnd:
			if errMsg, ok := event.Data["error"].(string); ok {
				pterm.Warning.Printfln("tool error: %s", errMsg)
			}
		case agent.EventWarning:
			if inText {
				fmt.Println()
				inText = false
			}
			pterm.Warning.Printfln("%v", event.Data["message"])
		case agent.EventError:
			if inText {
				fmt.Println()
				inText = false
			}
			pterm.Error.Printfln("%v", event.Data["error"])
		case agent.EventTaskEnd:
			if inText {
				fmt.Println()
				inText = false
			}
		}
	}
}
