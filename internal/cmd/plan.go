package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tradeflow/internal/notify"
	"github.com/felixgeelhaar/tradeflow/internal/plan"
)

// localOwner owns plans run from the command line.
const localOwner = "cli"

func newPlanCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate and run plan files locally",
	}
	cmd.AddCommand(newPlanValidateCmd(), newPlanRunCmd(root))
	return cmd
}

func newPlanValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a plan file without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := plan.LoadFile(file)
			if err != nil {
				return err
			}
			st := defaultStyles()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d steps)\n", st.Success.Render("valid"), in.Title, len(in.Steps))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "plan file (YAML or JSON)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newPlanRunCmd(root *rootOptions) *cobra.Command {
	var file, output string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a plan file against the module catalog",
		Long: `Run a plan file in-process: the plan is created, approved and executed
with the configured catalog and transport, and step progress is printed
as it happens.

Example:
  tradeflow plan run -f examples/samsung-analysis.yaml --output result.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := plan.LoadFile(file)
			if err != nil {
				return err
			}
			cfg, err := root.load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := newServices(ctx, cfg, root.logger(cfg), nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.close(ctx) }()

			p, err := svc.plans.Create(ctx, localOwner, *in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := defaultStyles()
			fmt.Fprintf(out, "%s %s %s\n", st.Title.Render("▶"), p.Title, st.Muted.Render(p.ID))

			sub := svc.hub.Subscribe(notify.WorkflowTopic(p.ID))
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				renderEvents(out, p, sub.C())
			}()

			result, runErr := svc.orchestrator.Run(ctx, p.ID, localOwner)
			sub.Close()
			wg.Wait()
			if runErr != nil {
				return runErr
			}

			fmt.Fprintln(out, renderSummary(result))

			if output != "" {
				if err := plan.SaveFile(result, output); err != nil {
					return err
				}
			}
			if result.Status == plan.StatusFailed {
				return fmt.Errorf("plan %s failed: %s", result.ID, result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "plan file (YAML or JSON)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the finished plan as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// renderEvents prints step transitions until events is closed.
func renderEvents(w io.Writer, p *plan.Plan, events <-chan notify.Message) {
	st := defaultStyles()
	titles := make(map[string]string, len(p.Steps))
	for _, s := range p.Steps {
		titles[s.ID] = s.Title
	}

	for msg := range events {
		ev, ok := msg.Data.(notify.Event)
		if !ok || ev.Kind != notify.KindStepStatus {
			continue
		}
		line := fmt.Sprintf("  %-10s %s", st.status(ev.Status), titles[ev.StepID])
		if ev.Error != "" {
			line += " " + st.Error.Render(ev.Error)
		}
		fmt.Fprintln(w, line)
	}
}

func renderSummary(p *plan.Plan) string {
	st := defaultStyles()
	var b strings.Builder

	completed := 0
	for _, s := range p.Steps {
		if s.Status == plan.StepCompleted {
			completed++
		}
	}
	fmt.Fprintf(&b, "%s %s\n", st.Key.Render("Status:"), st.status(string(p.Status)))
	fmt.Fprintf(&b, "%s %d/%d completed", st.Key.Render("Steps: "), completed, len(p.Steps))
	if p.ExecutionStartAt != nil && p.ExecutionEndAt != nil {
		fmt.Fprintf(&b, "\n%s %s", st.Key.Render("Elapsed:"), p.ExecutionEndAt.Sub(*p.ExecutionStartAt).Round(time.Millisecond))
	}
	if p.Error != "" {
		fmt.Fprintf(&b, "\n%s %s", st.Key.Render("Error: "), st.Error.Render(p.Error))
	}
	return st.Border.Render(b.String())
}
