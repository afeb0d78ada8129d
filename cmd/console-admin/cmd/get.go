package cmd

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "List resources",
}

var getRolesCmd = &cobra.Command{
	Use:     "roles",
	Aliases: []string{"role"},
	Short:   "List the active role hierarchy",
	RunE:    runGetRoles,
}

var getOperationsCmd = &cobra.Command{
	Use:     "bulk-operations",
	Aliases: []string{"bulk-operation", "ops"},
	Short:   "List bulk operations visible to the caller",
	RunE:    runGetOperations,
}

var getAuditCmd = &cobra.Command{
	Use:   "audit OPERATION_ID",
	Short: "List the audit trail of a bulk operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetAudit,
}

func init() {
	getCmd.AddCommand(getRolesCmd)
	getCmd.AddCommand(getOperationsCmd)
	getCmd.AddCommand(getAuditCmd)
}

func runGetRoles(cmd *cobra.Command, args []string) error {
	client := mustClient()
	data, err := client.Get(cmd.Context(), "/api/v1/roles")
	if err != nil {
		return err
	}

	var resp RoleListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	format := outputFor(cmd)
	return render(cmd.OutOrStdout(), format, resp, func(w io.Writer) {
		printRoles(w, format, resp)
	})
}

// printRoles lists the hierarchy highest first. Roles the caller cannot
// assign are marked so a role_change target can be picked from the list.
func printRoles(w io.Writer, format outputFormat, resp RoleListResponse) {
	if format == outputWide {
		t := newTable(w, "NAME", "LEVEL", "OWNER", "ASSIGNABLE", "PERMISSIONS")
		for _, r := range resp.Roles {
			t.row(r.Name, r.Level, strconv.FormatBool(r.IsOwner), assignable(r), strings.Join(r.Permissions, ","))
		}
		t.flush()
		fmt.Fprintf(w, "\n%d roles, loaded %s\n", resp.Total, localTime(resp.LoadedAt))
		return
	}
	t := newTable(w, "NAME", "LEVEL", "PERMISSIONS", "ASSIGNABLE")
	for _, r := range resp.Roles {
		t.row(r.Name, r.Level, r.PermissionCount, assignable(r))
	}
	t.flush()
}

func assignable(r RoleResponse) string {
	switch {
	case r.IsOwner:
		return "never"
	case r.Manageable:
		return "yes"
	default:
		return "no"
	}
}

func runGetOperations(cmd *cobra.Command, args []string) error {
	client := mustClient()
	data, err := client.Get(cmd.Context(), "/api/v1/bulk-operations")
	if err != nil {
		return err
	}

	var resp ProgressListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	format := outputFor(cmd)
	return render(cmd.OutOrStdout(), format, resp, func(w io.Writer) {
		if resp.Total == 0 {
			fmt.Fprintln(w, "No bulk operations found.")
			return
		}
		headers := []string{"ID", "KIND", "STATE", "PROGRESS", "OK", "FAILED", "STARTED"}
		if format == outputWide {
			headers = append(headers, "ACTOR", "FINISHED")
		}
		t := newTable(w, headers...)
		for _, p := range resp.Data {
			cells := []any{p.OperationID, p.Kind, p.State, progressStr(p), p.Successful, p.Failed, localTime(p.StartedAt)}
			if format == outputWide {
				finished := "-"
				if p.FinishedAt != nil {
					finished = localTime(*p.FinishedAt)
				}
				cells = append(cells, p.ActorID, finished)
			}
			t.row(cells...)
		}
		t.flush()
	})
}

func runGetAudit(cmd *cobra.Command, args []string) error {
	client := mustClient()
	data, err := client.Get(cmd.Context(), "/api/v1/bulk-operations/"+url.PathEscape(args[0])+"/audit")
	if err != nil {
		return err
	}

	var resp AuditListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	format := outputFor(cmd)
	return render(cmd.OutOrStdout(), format, resp, func(w io.Writer) {
		if resp.Total == 0 {
			fmt.Fprintln(w, "No audit entries found.")
			return
		}
		headers := []string{"TIME", "ACTION", "TARGET", "RESULT", "ERROR", "SEVERITY"}
		if format == outputWide {
			headers = append(headers, "CHANGE", "REASON")
		}
		t := newTable(w, headers...)
		for _, a := range resp.Data {
			cells := []any{localTime(a.Timestamp), a.Action, a.TargetUserID, a.Result, dash(a.ErrorKind), a.Severity}
			if format == outputWide {
				cells = append(cells, auditChange(a), dash(a.Reason))
			}
			t.row(cells...)
		}
		t.flush()
	})
}

// auditChange renders the before and after values as "old -> new".
func auditChange(a AuditRecord) string {
	if a.OldValue == nil && a.NewValue == nil {
		return "-"
	}
	deref := func(v *string) string {
		if v == nil {
			return "-"
		}
		return dash(*v)
	}
	return deref(a.OldValue) + " -> " + deref(a.NewValue)
}
