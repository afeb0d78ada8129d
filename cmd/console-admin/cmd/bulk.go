package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var bulkCmd = &cobra.Command{
	Use:     "bulk",
	Aliases: []string{"bulk-operation"},
	Short:   "Submit and follow bulk user operations",
}

var bulkSubmitCmd = &cobra.Command{
	Use:   "submit KIND [USER_ID...]",
	Short: "Submit a bulk operation (activate, deactivate, role_change, delete)",
	Long: `Submit a bulk operation against a set of users.

Targets are taken from the arguments and from --file (one id per line,
"-" for stdin). Duplicates are removed by the server.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBulkSubmit,
}

var bulkStatusCmd = &cobra.Command{
	Use:   "status OPERATION_ID",
	Short: "Show the progress of a bulk operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runBulkStatus,
}

var bulkResultCmd = &cobra.Command{
	Use:   "result OPERATION_ID",
	Short: "Show the result of a finished bulk operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runBulkResult,
}

var bulkCancelCmd = &cobra.Command{
	Use:   "cancel OPERATION_ID",
	Short: "Cancel a running bulk operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runBulkCancel,
}

func init() {
	bulkSubmitCmd.Flags().String("role", "", "Target role for role_change")
	bulkSubmitCmd.Flags().String("reason", "", "Reason recorded in the audit log (required for delete)")
	bulkSubmitCmd.Flags().StringP("file", "f", "", "Read target user ids from file, one per line (- for stdin)")
	bulkSubmitCmd.Flags().Bool("wait", false, "Wait for the operation to finish and print its result")
	bulkSubmitCmd.Flags().Duration("poll-interval", time.Second, "Progress poll interval with --wait")

	bulkStatusCmd.Flags().Bool("wait", false, "Wait for the operation to finish")
	bulkStatusCmd.Flags().Duration("poll-interval", time.Second, "Progress poll interval with --wait")

	bulkCmd.AddCommand(bulkSubmitCmd, bulkStatusCmd, bulkResultCmd, bulkCancelCmd)
}

func runBulkSubmit(cmd *cobra.Command, args []string) error {
	req := SubmitRequest{
		Kind:          args[0],
		TargetUserIDs: args[1:],
	}
	req.TargetRole, _ = cmd.Flags().GetString("role")
	req.Reason, _ = cmd.Flags().GetString("reason")

	if path, _ := cmd.Flags().GetString("file"); path != "" {
		ids, err := readTargets(path)
		if err != nil {
			return err
		}
		req.TargetUserIDs = append(req.TargetUserIDs, ids...)
	}
	if len(req.TargetUserIDs) == 0 {
		return errors.New("at least one target user id is required")
	}

	client := mustClient()
	data, err := client.Post(cmd.Context(), "/api/v1/bulk-operations", req)
	if err != nil {
		return err
	}

	var resp SubmitResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	format := outputFor(cmd)
	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		interval, _ := cmd.Flags().GetDuration("poll-interval")
		if _, err := waitForOperation(cmd.Context(), client, resp.OperationID, interval, progressPrinter(cmd, format)); err != nil {
			return err
		}
		return printResult(cmd, client, resp.OperationID)
	}

	return render(cmd.OutOrStdout(), format, resp, func(w io.Writer) {
		fmt.Fprintf(w, "Bulk operation %s accepted (%d targets).\n", resp.OperationID, len(req.TargetUserIDs))
	})
}

func runBulkStatus(cmd *cobra.Command, args []string) error {
	client := mustClient()
	format := outputFor(cmd)

	var (
		progress ProgressResponse
		err      error
	)
	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		interval, _ := cmd.Flags().GetDuration("poll-interval")
		progress, err = waitForOperation(cmd.Context(), client, args[0], interval, progressPrinter(cmd, format))
	} else {
		progress, err = getProgress(cmd.Context(), client, args[0])
	}
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), format, progress, func(w io.Writer) {
		printProgress(w, format, progress)
	})
}

func runBulkResult(cmd *cobra.Command, args []string) error {
	return printResult(cmd, mustClient(), args[0])
}

func runBulkCancel(cmd *cobra.Command, args []string) error {
	client := mustClient()
	data, err := client.Post(cmd.Context(), "/api/v1/bulk-operations/"+url.PathEscape(args[0])+"/cancel", nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return fmt.Errorf("operation %s can no longer be cancelled: %w", args[0], err)
		}
		return err
	}

	var resp ProgressResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), outputFor(cmd), resp, func(w io.Writer) {
		fmt.Fprintf(w, "Cancellation requested for %s (%s).\n", resp.OperationID, progressStr(resp))
	})
}

func getProgress(ctx context.Context, client *Client, id string) (ProgressResponse, error) {
	var resp ProgressResponse
	data, err := client.Get(ctx, "/api/v1/bulk-operations/"+url.PathEscape(id))
	if err != nil {
		return resp, err
	}
	err = unmarshal(data, &resp)
	return resp, err
}

// waitForOperation polls until the operation reaches a terminal state.
func waitForOperation(ctx context.Context, client *Client, id string, interval time.Duration, onProgress func(ProgressResponse)) (ProgressResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p, err := getProgress(ctx, client, id)
		if err != nil {
			return p, err
		}
		if onProgress != nil {
			onProgress(p)
		}
		if p.Terminal() {
			return p, nil
		}

		select {
		case <-ctx.Done():
			return p, ctx.Err()
		case <-ticker.C:
		}
	}
}

// progressPrinter reports polling progress on stderr for human formats.
func progressPrinter(cmd *cobra.Command, format outputFormat) func(ProgressResponse) {
	if format.structured() {
		return nil
	}
	w := cmd.ErrOrStderr()
	return func(p ProgressResponse) {
		fmt.Fprintf(w, "%s %s %s\n", p.OperationID, p.State, progressStr(p))
	}
}

func printResult(cmd *cobra.Command, client *Client, id string) error {
	data, err := client.Get(cmd.Context(), "/api/v1/bulk-operations/"+url.PathEscape(id)+"/result")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return fmt.Errorf("operation %s is still running; use 'bulk status --wait'", id)
		}
		return err
	}

	var resp ResultResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	format := outputFor(cmd)
	return render(cmd.OutOrStdout(), format, resp, func(w io.Writer) {
		printResultSummary(w, format, resp)
	})
}

func printResultSummary(w io.Writer, format outputFormat, r ResultResponse) {
	fmt.Fprintf(w, "Operation:    %s\n", r.OperationID)
	fmt.Fprintf(w, "Kind:         %s\n", r.Kind)
	fmt.Fprintf(w, "State:        %s\n", r.State)
	fmt.Fprintf(w, "Successful:   %d\n", r.SuccessfulCount)
	fmt.Fprintf(w, "Failed:       %d\n", r.FailedCount)
	fmt.Fprintf(w, "Success rate: %.1f%%\n", r.SuccessRate)
	if r.Interruption != "" {
		fmt.Fprintf(w, "Interrupted:  %s\n", r.Interruption)
	}
	if format == outputWide {
		fmt.Fprintf(w, "Started:      %s\n", localTime(r.StartedAt))
		fmt.Fprintf(w, "Finished:     %s\n", localTime(r.FinishedAt))
	}
	printFailures(w, format, r.Failed)
}

func printProgress(w io.Writer, format outputFormat, p ProgressResponse) {
	fmt.Fprintf(w, "Operation:  %s\n", p.OperationID)
	fmt.Fprintf(w, "Kind:       %s\n", p.Kind)
	fmt.Fprintf(w, "State:      %s\n", p.State)
	fmt.Fprintf(w, "Progress:   %s\n", progressStr(p))
	fmt.Fprintf(w, "Successful: %d\n", p.Successful)
	fmt.Fprintf(w, "Failed:     %d\n", p.Failed)
	printFailures(w, format, p.Errors)
}

func readTargets(path string) ([]string, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		f, err = os.Open(expandPath(path))
		if err != nil {
			return nil, fmt.Errorf("open targets: %w", err)
		}
		defer f.Close()
	}

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return ids, nil
}
