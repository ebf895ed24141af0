package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// AuditEntry records one operator-initiated operation.
type AuditEntry struct {
	Timestamp string         `json:"timestamp"`
	Operation string         `json:"operation"` // "run"
	User      string         `json:"user"`
	RunID     string         `json:"runId,omitempty"`
	Manifest  string         `json:"manifest,omitempty"`
	Summary   map[string]int `json:"summary,omitempty"`
	Error     string         `json:"error,omitempty"`
}

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit [dir]",
	Short: "Show the audit log of past operations",
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of entries to show")
}

func auditLogPath(wd string) string {
	return filepath.Join(provisorDir(wd), "audit.log")
}

// writeAuditLog appends an entry to the audit log. Audit logging failure
// never blocks the operation itself.
func writeAuditLog(wd string, entry AuditEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if entry.User == "" {
		entry.User = currentUser()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if err := os.MkdirAll(provisorDir(wd), 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(auditLogPath(wd), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil
	}
	defer f.Close()

	_, err = f.WriteString(string(data) + "\n")
	return err
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "unknown"
}

func runAudit(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveManifest(args)
	if err != nil {
		return err
	}

	f, err := os.Open(auditLogPath(wd))
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No audit entries.")
			return nil
		}
		return err
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if len(entries) > auditLimit {
		entries = entries[len(entries)-auditLimit:]
	}
	for _, entry := range entries {
		line := fmt.Sprintf("%s  %-6s %s", entry.Timestamp, entry.Operation, entry.User)
		if entry.RunID != "" {
			line += fmt.Sprintf("  run=%s", entry.RunID)
		}
		if entry.Manifest != "" {
			line += fmt.Sprintf("  manifest=%s", entry.Manifest)
		}
		for state, n := range entry.Summary {
			line += fmt.Sprintf("  %s=%d", state, n)
		}
		if entry.Error != "" {
			line += fmt.Sprintf("  error=%q", entry.Error)
		}
		fmt.Println(line)
	}
	return nil
}
