package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/client"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/content"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/keeper"
	"github.com/wadjakorntonsri/go-safelink/pkg/gateway"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

type visitOptions struct {
	countdown  time.Duration
	auto       bool
	resume     bool
	contentURL []string
	keeperPath string
}

func newVisitCommand(ctx *commandContext) *cobra.Command {
	var opts visitOptions

	cmd := &cobra.Command{
		Use:   "visit [token]",
		Short: "Walk through the gateway flow for a token",
		Long: "Runs the countdown, opens a random content item on verify and follows the link on continue.\n" +
			"Without a token (or with --resume) the last kept token is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 && !opts.resume {
				token = args[0]
			}
			return runVisit(cmd, ctx, token, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.countdown, "countdown", 0, "Countdown before verification (defaults to COUNTDOWN_SECONDS)")
	cmd.Flags().BoolVar(&opts.auto, "auto", false, "Verify and continue without prompting")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Resume the last kept token")
	cmd.Flags().StringSliceVar(&opts.contentURL, "content", nil, "Content URLs to verify against (defaults to CONTENT_URLS)")
	cmd.Flags().StringVar(&opts.keeperPath, "keeper", "", "File that keeps the token between runs")
	return cmd
}

func runVisit(cmd *cobra.Command, ctx *commandContext, token string, opts visitOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	countdown := opts.countdown
	if countdown <= 0 {
		countdown = cfg.Countdown()
	}

	var collection ports.ContentCollection = content.FromConfig(cfg)
	if len(opts.contentURL) > 0 {
		collection = content.NewStatic(opts.contentURL)
	}

	keeperPath := opts.keeperPath
	if keeperPath == "" {
		if keeperPath, err = keeper.DefaultPath(); err != nil {
			return err
		}
	}
	kept := keeper.NewFile(keeperPath)

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	renderer := newVisitRenderer(out, isTerminal(out))
	ready := make(chan struct{})
	var readyOnce sync.Once

	cl := client.New(ctx.serverURL(), nil)
	machine := gateway.New(gateway.Config{Countdown: countdown}, gateway.Deps{
		Handshaker: cl,
		Resolver:   cl,
		Collection: collection,
		Opener:     client.NewHTTPOpener(nil),
		Keeper:     kept,
		Logger:     ctx.log(),
		OnChange: func(snap gateway.Snapshot) {
			renderer.Render(snap)
			if snap.State != gateway.CountingDown {
				readyOnce.Do(func() { close(ready) })
			}
		},
	})
	defer machine.Close()

	if machine.Start(token) == gateway.PendingToken {
		return errors.New("no token given and none kept; pass a token to visit")
	}

	select {
	case <-ready:
	case <-runCtx.Done():
		return runCtx.Err()
	}

	input := bufio.NewReader(cmd.InOrStdin())
	if !opts.auto {
		if err := waitForEnter(runCtx, input, out, "Press Enter to verify"); err != nil {
			return err
		}
	}
	if err := machine.Verify(runCtx); err != nil {
		return err
	}
	if item := machine.Snapshot().Item; item != nil {
		fmt.Fprintf(out, "Opened %s\n", item.URL)
	}

	if !opts.auto {
		if err := waitForEnter(runCtx, input, out, "Press Enter to continue"); err != nil {
			return err
		}
	}
	destination, err := machine.Continue(runCtx)
	if err != nil {
		if msg := machine.Snapshot().Message; msg != "" {
			return errors.New(msg)
		}
		return err
	}

	if err := kept.Save(""); err != nil {
		ctx.log().Warn("could not clear kept token", "error", err)
	}
	fmt.Fprintln(out, destination)
	return nil
}

func waitForEnter(ctx context.Context, in *bufio.Reader, out io.Writer, prompt string) error {
	fmt.Fprintf(out, "%s: ", prompt)
	done := make(chan error, 1)
	go func() {
		_, err := in.ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type visitRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	live     bool
	lastLine string
	last     gateway.State
	started  bool
}

func newVisitRenderer(out io.Writer, live bool) *visitRenderer {
	return &visitRenderer{out: out, live: live}
}

// Render rewrites the status line on a terminal and prints state changes elsewhere.
func (r *visitRenderer) Render(snap gateway.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := describe(snap)
	if r.live {
		if snap.State == gateway.CountingDown {
			fmt.Fprintf(r.out, "\r\033[K%s", line)
			r.lastLine = line
			r.last, r.started = snap.State, true
			return
		}
		if r.started && r.last == gateway.CountingDown {
			fmt.Fprintln(r.out)
		}
	} else if r.started && r.last == snap.State && snap.State == gateway.CountingDown {
		return
	}

	if line != r.lastLine || snap.State != r.last {
		fmt.Fprintln(r.out, line)
	}
	r.lastLine = line
	r.last, r.started = snap.State, true
}

func describe(snap gateway.Snapshot) string {
	switch snap.State {
	case gateway.CountingDown:
		secs := int((snap.Remaining + time.Second - 1) / time.Second)
		return fmt.Sprintf("Please wait %ds", secs)
	case gateway.AwaitingVerification:
		return "Ready to verify"
	case gateway.Verified:
		return "Verified"
	case gateway.Resolving:
		return "Opening link"
	case gateway.Redirected:
		return "Redirecting to " + snap.Destination
	case gateway.Failed:
		return "Error: " + snap.Message
	default:
		return strings.ReplaceAll(snap.State.String(), "_", " ")
	}
}
