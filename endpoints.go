package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/skeema/mybase"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

// sourceInstance builds the read-side endpoint from configuration, verifying
// the required credentials are present.
func sourceInstance(cfg *mybase.Config) (*dbserver.Instance, error) {
	return instanceFromConfig(cfg, "read")
}

// destInstance builds the write-side endpoint from configuration.
func destInstance(cfg *mybase.Config) (*dbserver.Instance, error) {
	return instanceFromConfig(cfg, "write")
}

func instanceFromConfig(cfg *mybase.Config, side string) (*dbserver.Instance, error) {
	host := cfg.Get(side + "-host")
	user := cfg.Get(side + "-user")
	password := cfg.Get(side + "-password")
	var missing []string
	if host == "" {
		missing = append(missing, strings.ToUpper(side)+"_DB_HOST")
	}
	if user == "" {
		missing = append(missing, strings.ToUpper(side)+"_DB_USER")
	}
	if password == "" {
		missing = append(missing, strings.ToUpper(side)+"_DB_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, NewExitValue(CodeBadConfig, "Missing required configuration: %s", strings.Join(missing, ", "))
	}
	port, err := strconv.Atoi(cfg.Get(side + "-port"))
	if err != nil || port < 1 {
		return nil, NewExitValue(CodeBadConfig, "Invalid %s-port value %q", side, cfg.Get(side+"-port"))
	}
	return dbserver.NewInstance(host, port, user, password), nil
}

// splitList tokenizes a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var result []string
	for _, token := range strings.Split(raw, ",") {
		if token = strings.TrimSpace(token); token != "" {
			result = append(result, token)
		}
	}
	return result
}

// parseIDList parses a comma-separated integer list such as "1,7". A
// surrounding [] is tolerated.
func parseIDList(raw string) ([]int, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	var ids []int
	for _, token := range splitList(raw) {
		id, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q in list", token)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// promptLine reads one trimmed line from STDIN.
func promptLine(prompt string) string {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// customerIDsFromConfig returns the customer-id set from the option, or
// prompts for it when absent.
func customerIDsFromConfig(cfg *mybase.Config, interactive bool) ([]int, error) {
	raw := cfg.Get("customer-ids")
	if raw == "" && interactive {
		raw = promptLine("Customer ids to migrate (comma-separated): ")
	}
	ids, err := parseIDList(raw)
	if err != nil {
		return nil, NewExitValue(CodeBadConfig, "%s", err)
	}
	if len(ids) == 0 {
		return nil, NewExitValue(CodeBadConfig, "At least one customer id is required")
	}
	return ids, nil
}

// databasesFromConfig returns the database list from the option, or
// interactively offers the source server's databases, accepting "all".
func databasesFromConfig(cfg *mybase.Config, source *dbserver.Instance) ([]string, error) {
	if raw := cfg.Get("databases"); raw != "" {
		if strings.EqualFold(raw, "all") {
			return source.SchemaNames()
		}
		names := splitList(raw)
		for _, name := range names {
			if dbserver.IsSystemDatabase(name) {
				return nil, NewExitValue(CodeBadConfig, "System database %s cannot be migrated", name)
			}
		}
		return names, nil
	}

	available, err := source.SchemaNames()
	if err != nil {
		return nil, fmt.Errorf("unable to list databases on %s: %w", source, err)
	}
	fmt.Printf("Available databases on source server (%s):\n", source)
	for n, name := range available {
		fmt.Printf("  %d. %s\n", n+1, name)
	}
	answer := promptLine("Database names to migrate (comma-separated, or 'all'): ")
	if answer == "" {
		return nil, NewExitValue(CodeBadConfig, "No databases specified")
	}
	if strings.EqualFold(answer, "all") {
		return available, nil
	}
	return splitList(answer), nil
}
