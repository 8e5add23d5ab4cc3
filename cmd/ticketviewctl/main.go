package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ticketview/ticketview/internal/config"
	"github.com/ticketview/ticketview/internal/ics"
	"github.com/ticketview/ticketview/internal/store"
	"github.com/ticketview/ticketview/internal/view"
	"github.com/ticketview/ticketview/pkg/protocol"
)

// viewRoutes maps view names to the API path serving them.
var viewRoutes = map[string]string{
	view.AdminByAssignee.Name: "/api/assignees/%s/tickets",
	view.AdminByClient.Name:   "/api/clients/%s/tickets",
	view.EmployeeSelf.Name:    "/api/employees/%s/tickets",
	view.ClientPortal.Name:    "/api/portal/%s/tickets",
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "tickets":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: ticketviewctl tickets <view> <key>")
			os.Exit(1)
		}
		cmdTickets(os.Args[2], os.Args[3])
	case "meetings":
		cmdMeetings()
	case "import-tickets":
		cmdImportTickets(os.Args[2:])
	case "import-ics":
		cmdImportICS(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: ticketviewctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- API client commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdTickets(viewName, key string) {
	route, ok := viewRoutes[viewName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown view: %s (want one of admin-by-assignee, admin-by-client, employee-self, client-portal)\n", viewName)
		os.Exit(1)
	}
	body, err := apiGet(fmt.Sprintf(route, url.PathEscape(key)))
	if err != nil {
		fatal(err)
	}

	var page struct {
		Key         string                        `json:"key"`
		Tickets     []protocol.PresentationRecord `json:"tickets"`
		Skipped     int                           `json:"skipped"`
		CurrentTime string                        `json:"current_time"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		fmt.Println(prettyJSON(body))
		return
	}
	for _, t := range page.Tickets {
		fmt.Printf("%-24s %-22s %6.2f  %s\n", strings.Join(t.Category, ","), t.LastActivity, t.HoursActual, t.Subject)
	}
	if page.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "%d tickets skipped\n", page.Skipped)
	}
	if page.CurrentTime != "" {
		fmt.Printf("\ncurrent time: %s\n", page.CurrentTime)
	}
}

func cmdMeetings() {
	body, err := apiGet("/api/meetings")
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

// --- Local store commands ---

func cmdImportTickets(args []string) {
	fs := flag.NewFlagSet("import-tickets", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("TICKETVIEW_CONFIG"), "Path to config file (default: environment)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ticketviewctl import-tickets [-config path] <file.json>")
		os.Exit(1)
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	var tickets []protocol.TicketRecord
	if err := json.Unmarshal(data, &tickets); err != nil {
		fatal(fmt.Errorf("parse %s: %w", fs.Arg(0), err))
	}

	st, _ := openStore(*configPath)
	defer st.Close()

	saved := 0
	for _, t := range tickets {
		if t.ID == "" {
			fmt.Fprintf(os.Stderr, "skipping ticket without id: %q\n", t.Subject)
			continue
		}
		if err := st.SaveTicket(t); err != nil {
			fatal(fmt.Errorf("save ticket %s: %w", t.ID, err))
		}
		saved++
	}
	fmt.Printf("imported %d tickets\n", saved)
}

func cmdImportICS(args []string) {
	fs := flag.NewFlagSet("import-ics", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("TICKETVIEW_CONFIG"), "Path to config file (default: environment)")
	feed := fs.String("feed", "", "Feed name (default: calendar owner from config)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ticketviewctl import-ics [-config path] [-feed name] <file.ics>")
		os.Exit(1)
	}

	st, cfg := openStore(*configPath)
	defer st.Close()

	name := *feed
	if name == "" {
		name = cfg.Calendar.FeedName()
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fatal(err)
	}

	importer := ics.NewImporter(cliLogger())
	n, err := importer.Sync(context.Background(), ics.Source{Name: name, Path: path}, st)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("imported %d meetings into feed %q\n", n, name)
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func openStore(configPath string) (*store.SQLiteStore, *config.Config) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fatal(fmt.Errorf("load config: %w", err))
	}
	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		fatal(err)
	}
	st, err := store.Open(cfg.Store.DBPath())
	if err != nil {
		fatal(err)
	}
	return st, cfg
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func apiGet(path string) ([]byte, error) {
	base := envOr("TICKETVIEW_API_URL", "http://localhost:8080")

	req, err := http.NewRequest("GET", base+path, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("TICKETVIEW_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("ticketviewctl - ticket portal management CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                     Check daemon health")
	fmt.Println("  tickets <view> <key>       Show a ticket view (admin-by-assignee, admin-by-client, employee-self, client-portal)")
	fmt.Println("  meetings                   Show the recent meetings window")
	fmt.Println("  import-tickets <file>      Load ticket records from a JSON array into the local store")
	fmt.Println("  import-ics <file>          Expand an iCalendar file into the local store")
	fmt.Println("  config validate <path>     Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  TICKETVIEW_API_URL   Daemon URL (default: http://localhost:8080)")
	fmt.Println("  TICKETVIEW_API_KEY   API key for authentication")
	fmt.Println("  TICKETVIEW_CONFIG    Config file for import commands (default: TICKETVIEW_* variables)")
}
