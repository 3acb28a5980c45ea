package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamed0406/urlmonitor/internal/domain"
)

type client struct {
	base string
	key  string
	http *http.Client
}

func (c *client) do(method, path string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, strings.TrimRight(c.base, "/")+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	c := &client{http: &http.Client{Timeout: 15 * time.Second}}

	root := &cobra.Command{
		Use:           "urlmonitor",
		Short:         "Manage URL checks through the monitor API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.base, "api", envOr("API_BASE", "http://localhost:8080"), "API base URL (env API_BASE)")
	root.PersistentFlags().StringVar(&c.key, "key", os.Getenv("API_KEY"), "API key (env API_KEY)")

	root.AddCommand(addCmd(c), listCmd(c), deleteCmd(c), resultsCmd(c), latestCmd(c))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func addCmd(c *client) *cobra.Command {
	var (
		frequency int
		status    int
		expect    string
		emails    []string
	)
	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Start monitoring a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(args[0])
			if !strings.Contains(raw, "://") {
				raw = "https://" + raw
			}
			if _, err := url.ParseRequestURI(raw); err != nil {
				return fmt.Errorf("invalid URL %q", raw)
			}
			var d domain.CheckDefinition
			err := c.do(http.MethodPost, "/checkdefinitions", map[string]any{
				"url":            raw,
				"frequency":      frequency,
				"expectedStatus": status,
				"expectedString": expect,
			}, &d)
			if err != nil {
				return err
			}
			for _, e := range emails {
				addr := map[string]any{"checkId": d.ID, "emailAddress": e}
				if err := c.do(http.MethodPost, "/notificationaddresses", addr, nil); err != nil {
					return fmt.Errorf("check %d added but address %s failed: %w", d.ID, e, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added check %d for %s every %d\n", d.ID, d.URL, d.Frequency)
			return nil
		},
	}
	cmd.Flags().IntVarP(&frequency, "frequency", "f", 60, "seconds between probes")
	cmd.Flags().IntVarP(&status, "status", "s", http.StatusOK, "expected HTTP status")
	cmd.Flags().StringVarP(&expect, "expect", "e", "", "substring the body must contain")
	cmd.Flags().StringSliceVar(&emails, "email", nil, "address to alert on failure (repeatable)")
	return cmd
}

func listCmd(c *client) *cobra.Command {
	var contains string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List check definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var defs []domain.CheckDefinition
			if err := c.do(http.MethodGet, "/checkdefinitions?urlcontains="+url.QueryEscape(contains), nil, &defs); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tURL\tFREQ\tSTATUS\tEXPECT\tEMAILS")
			for _, d := range defs {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%d\n", d.ID, d.URL, d.Frequency, d.ExpectedStatus, d.ExpectedString, len(d.EmailAddresses))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&contains, "contains", "", "only URLs containing this text")
	return cmd
}

func deleteCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Stop monitoring and delete a check with its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			if err := c.do(http.MethodDelete, fmt.Sprintf("/checkdefinitions/%d", id), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted check %d\n", id)
			return nil
		},
	}
}

func resultsCmd(c *client) *cobra.Command {
	var checkID int64
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show recorded check results",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/checkresults"
			if checkID > 0 {
				path += "?checkId=" + strconv.FormatInt(checkID, 10)
			}
			var rs []domain.CheckResult
			if err := c.do(http.MethodGet, path, nil, &rs); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCHECK\tTIME\tSTATUS\tSTATE")
			for _, r := range rs {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\n", r.ID, r.CheckID, r.TimeChecked.Format(time.RFC3339), r.StatusCode, r.State)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64Var(&checkID, "check", 0, "only results of this check id")
	return cmd
}

func latestCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the latest state of every checked URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []domain.LatestResult
			if err := c.do(http.MethodGet, "/latestresults", nil, &rows); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tURL\tSTATE\tCHECKED")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.URL, r.LastState, r.LastChecked.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}
