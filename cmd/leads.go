package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/linanwx/leadbridge/config"
	"github.com/linanwx/leadbridge/lead"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and update stored leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads, newest first",
	RunE:  runLeadsList,
}

var leadsUpdateCmd = &cobra.Command{
	Use:   "update <lead-id>",
	Short: "Update a lead's progress flags or notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeadsUpdate,
}

var leadsDeleteCmd = &cobra.Command{
	Use:   "delete <lead-id>",
	Short: "Delete a lead",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeadsDelete,
}

var (
	leadsEmployee  string
	leadsValidated string
	leadsPage      int
	leadsLimit     int
	leadsJSON      bool

	leadsSetValidated bool
	leadsSetOutreach  bool
	leadsSetResponse  bool
	leadsSetConverted bool
	leadsSetNotes     string
)

func init() {
	leadsListCmd.Flags().StringVar(&leadsEmployee, "employee", "", "Only leads of this employee")
	leadsListCmd.Flags().StringVar(&leadsValidated, "validated", "", "Filter by validated flag (true/false)")
	leadsListCmd.Flags().IntVar(&leadsPage, "page", 1, "Page number")
	leadsListCmd.Flags().IntVar(&leadsLimit, "limit", 20, "Leads per page")
	leadsListCmd.Flags().BoolVar(&leadsJSON, "json", false, "Output as JSON")

	leadsUpdateCmd.Flags().BoolVar(&leadsSetValidated, "validated", false, "Set the validated flag")
	leadsUpdateCmd.Flags().BoolVar(&leadsSetOutreach, "outreach-sent", false, "Set the outreach sent flag")
	leadsUpdateCmd.Flags().BoolVar(&leadsSetResponse, "response-received", false, "Set the response received flag")
	leadsUpdateCmd.Flags().BoolVar(&leadsSetConverted, "converted", false, "Set the converted flag")
	leadsUpdateCmd.Flags().StringVar(&leadsSetNotes, "notes", "", "Replace the notes")

	leadsCmd.AddCommand(leadsListCmd, leadsUpdateCmd, leadsDeleteCmd)
	rootCmd.AddCommand(leadsCmd)
}

func openPipeline() (*lead.Pipeline, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	st, _, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return lead.NewPipeline(st, lead.NewScorer(cfg.Bridge.RelevantKeywords)), func() { st.Close() }, nil
}

func runLeadsList(cmd *cobra.Command, _ []string) error {
	q := lead.Query{EmployeeID: strings.TrimSpace(leadsEmployee), Page: leadsPage, Limit: leadsLimit}
	if leadsValidated != "" {
		v, err := parseBoolFlag("validated", leadsValidated)
		if err != nil {
			return err
		}
		q.Validated = &v
	}

	p, closeFn, err := openPipeline()
	if err != nil {
		return err
	}
	defer closeFn()

	page, err := p.List(context.Background(), q)
	if err != nil {
		return err
	}
	if leadsJSON {
		data, err := json.MarshalIndent(page, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	printLeads(cmd.OutOrStdout(), page)
	return nil
}

func printLeads(w io.Writer, page *lead.Page) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMPLOYEE\tBUSINESS\tCITY\tSCORE\tVALIDATED\tCONVERTED")
	for _, l := range page.Leads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%t\t%t\n",
			l.ID, l.EmployeeID, l.BusinessName, l.City, l.TotalScore, l.Validated, l.Converted)
	}
	tw.Flush()
	fmt.Fprintf(w, "\npage %d, %d of %d leads\n", page.Page, len(page.Leads), page.Total)
}

func runLeadsUpdate(cmd *cobra.Command, args []string) error {
	u := progressFromFlags(cmd)
	p, closeFn, err := openPipeline()
	if err != nil {
		return err
	}
	defer closeFn()

	l, err := p.UpdateProgress(context.Background(), args[0], u)
	if err != nil {
		return err
	}
	fmt.Printf("Lead %s updated: validated=%t outreach_sent=%t response_received=%t converted=%t\n",
		l.ID, l.Validated, l.OutreachSent, l.ResponseReceived, l.Converted)
	return nil
}

// progressFromFlags only sets fields whose flags were given explicitly.
func progressFromFlags(cmd *cobra.Command) lead.ProgressUpdate {
	var u lead.ProgressUpdate
	flags := cmd.Flags()
	setBool := func(name string, v bool, dst **bool) {
		if flags.Changed(name) {
			b := v
			*dst = &b
		}
	}
	setBool("validated", leadsSetValidated, &u.Validated)
	setBool("outreach-sent", leadsSetOutreach, &u.OutreachSent)
	setBool("response-received", leadsSetResponse, &u.ResponseReceived)
	setBool("converted", leadsSetConverted, &u.Converted)
	if flags.Changed("notes") {
		notes := leadsSetNotes
		u.Notes = &notes
	}
	return u
}

func runLeadsDelete(_ *cobra.Command, args []string) error {
	p, closeFn, err := openPipeline()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := p.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Println("Lead deleted:", args[0])
	return nil
}

func parseBoolFlag(name, raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid --%s: %q (use true or false)", name, raw)
}
