package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/client"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/services"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

func newIssueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <url>",
		Short: "Issue a safe link for a destination URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := client.New(ctx.serverURL(), nil)
			issued, err := cl.Issue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token:    %s\n", issued.Token)
			fmt.Fprintf(out, "Safelink: %s\n", issued.SafeLink)
			return nil
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show [token...]",
		Short: "Show stored links and their counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store ports.TokenStore) error {
				links, err := collectLinks(cmd, store, args)
				if err != nil {
					return err
				}
				if len(links) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No links stored")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), linksTable(links))
				return nil
			})
		},
	}
}

func collectLinks(cmd *cobra.Command, store ports.TokenStore, tokens []string) ([]domain.Link, error) {
	if len(tokens) == 0 {
		return store.Dump(cmd.Context())
	}
	links := make([]domain.Link, 0, len(tokens))
	for _, token := range tokens {
		link, err := store.Get(cmd.Context(), token)
		if errors.Is(err, domain.ErrNotFound) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", token, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, nil
}

func linksTable(links []domain.Link) string {
	rows := make([][]string, 0, len(links))
	for _, l := range links {
		firstViewed := "-"
		if l.FirstViewedAt != nil {
			firstViewed = l.FirstViewedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			l.Token,
			l.OriginalURL,
			strconv.FormatInt(l.Clicks, 10),
			l.CreatedAt.Local().Format(time.DateTime),
			firstViewed,
		})
	}
	return renderTable(
		[]string{"Token", "Destination", "Clicks", "Created", "First viewed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Dump every stored link as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store ports.TokenStore) error {
				links, err := store.Dump(cmd.Context())
				if err != nil {
					return fmt.Errorf("export failed: %w", err)
				}
				if links == nil {
					links = []domain.Link{}
				}
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(links)
			})
		},
	}
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load links from a JSON export",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open file: %w", err)
				}
				defer f.Close()
				in = f
			}

			var links []domain.Link
			if err := json.NewDecoder(in).Decode(&links); err != nil {
				return fmt.Errorf("decode failed: %w", err)
			}

			return ctx.withStore(func(store ports.TokenStore) error {
				imported, skipped := importLinks(cmd, store, links)
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d links, skipped %d\n", imported, skipped)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file to import (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func importLinks(cmd *cobra.Command, store ports.TokenStore, links []domain.Link) (imported, skipped int) {
	for i := range links {
		l := links[i]
		if err := validateImported(l); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Skipping %q: %v\n", l.Token, err)
			skipped++
			continue
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = time.Now().UTC()
		}
		err := store.Put(cmd.Context(), &l)
		switch {
		case err == nil:
			imported++
		case errors.Is(err, domain.ErrDuplicateToken):
			fmt.Fprintf(cmd.ErrOrStderr(), "Skipping existing token: %s\n", l.Token)
			skipped++
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "Failed to import %s: %v\n", l.Token, err)
			skipped++
		}
	}
	return imported, skipped
}

func validateImported(l domain.Link) error {
	if err := services.ValidateToken(l.Token); err != nil {
		return err
	}
	return services.ValidateDestination(l.OriginalURL)
}
