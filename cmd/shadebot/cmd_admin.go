package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"shadebot/internal/normalize"
	"shadebot/internal/perception"
	"shadebot/internal/types"
	"shadebot/internal/usage"
)

var resetCmd = &cobra.Command{
	Use:   "reset [user-id]",
	Short: "Delete a conversation record and its history",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		if err := a.dispatcher.Reset(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("conversation %s reset\n", args[0])
		return nil
	}),
}

var releaseCmd = &cobra.Command{
	Use:   "release [user-id]",
	Short: "Hand a conversation back to the bot",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		rec, err := a.dispatcher.Release(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	}),
}

var takeoverCmd = &cobra.Command{
	Use:   "takeover [user-id]",
	Short: "Mark a human agent as active in a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		rec, err := a.dispatcher.TakeOver(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	}),
}

var recordCmd = &cobra.Command{
	Use:   "record [user-id]",
	Short: "Print a conversation record and its recent turns",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		rec, err := a.dispatcher.Record(ctx, args[0])
		if err != nil {
			return err
		}
		if err := printJSON(rec); err != nil {
			return err
		}
		turns, err := a.dispatcher.History(ctx, args[0], cfg.Store.HistoryLimit)
		if err != nil {
			return err
		}
		for _, t := range turns {
			fmt.Printf("[%s] %-4s %s\n", t.At.Format("15:04:05"), t.Role, t.Content)
		}
		return nil
	}),
}

var classifyCmd = &cobra.Command{
	Use:   "classify [message]",
	Short: "Show how the perception tiers read a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		original := strings.Join(args, " ")
		normalized := normalize.Normalize(original)
		fmt.Printf("normalized: %q\n", normalized)

		if m, ok := a.resolver.Fast(normalized); ok {
			fmt.Printf("fast:       %s (matcher=%s phrase=%q buying=%v)\n", m.Intent, m.Matcher, m.Phrase, m.Buying)
		} else {
			fmt.Println("fast:       no match")
		}

		an := a.resolver.Analyze(ctx, original, normalized, perception.ClassifyContext{})
		c := an.Classification
		fmt.Printf("classifier: %s conf=%.2f trusted=%v failed=%v\n", c.Intent, c.Confidence, c.Trusted, c.Failed)
		if an.EdgeCaseSkipped {
			fmt.Println("edge case:  skipped")
		} else {
			fmt.Printf("edge case:  %+v\n", an.EdgeCase)
		}
		return nil
	}),
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Print completion token usage",
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		stats := a.tracker.Stats()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "TOTAL\tcalls=%d\tin=%d\tout=%d\n", stats.Total.Calls, stats.Total.Input, stats.Total.Output)
		for _, section := range []struct {
			name string
			m    map[string]usage.TokenCounts
		}{
			{"provider", stats.ByProvider},
			{"model", stats.ByModel},
			{"operation", stats.ByOperation},
			{"handler", stats.ByHandler},
		} {
			keys := make([]string, 0, len(section.m))
			for k := range section.m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				c := section.m[k]
				fmt.Fprintf(w, "%s\t%s\tcalls=%d\tin=%d\tout=%d\n", section.name, k, c.Calls, c.Input, c.Output)
			}
		}
		return w.Flush()
	}),
}

// withApp wires the app for a one-shot command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, args)
	}
}

func printJSON(rec *types.ConversationRecord) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
