package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"dictation/internal/ipc"
	"dictation/internal/mcpserver"
	"dictation/internal/monitor"
)

var version = "dev"

var (
	socketPath string
	session    string
	asJSON     bool
	listLimit  int
)

var rootCmd = &cobra.Command{
	Use:           "dictation-ctl",
	Short:         "Control a running dictation daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func send(cmd ipc.Command) (ipc.Response, error) {
	cmd.Session = session
	resp, err := ipc.Dialer{Path: socketPath}.SendCommand(cmd)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("dictationd not running: %w", err)
	}
	if asJSON {
		b, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(b))
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s: %s", resp.Code, resp.Error)
	}
	return resp, nil
}

// simple builds a command whose positional args, if any, become the text.
func simple(use, short, name string, args cobra.PositionalArgs, show func(ipc.Response)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(ipc.Command{Cmd: name, Text: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			if !asJSON && show != nil {
				show(resp)
			}
			return nil
		},
	}
}

var startCmd = &cobra.Command{
	Use:   "start [name]",
	Short: "Start a dictation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		resp, err := send(ipc.Command{Cmd: "start", Name: name})
		if err != nil {
			return err
		}
		if !asJSON {
			fmt.Println("dictating", resp.Target)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved dictations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(ipc.Command{Cmd: "list", Limit: listLimit})
		if err != nil {
			return err
		}
		if !asJSON {
			for _, e := range resp.Entries {
				fmt.Printf("%s  %-24s %4d lines  %s\n", e.SavedAt.Local().Format("2006-01-02 15:04"), e.Name, e.Lines, e.Path)
			}
		}
		return nil
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch dictations live",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(monitor.New(socketPath, session), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the daemon as MCP tools on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpserver.Serve(ipc.Dialer{Path: socketPath}, version)
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the control protocol",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := map[string]*jsonschema.Schema{
			"command":  jsonschema.Reflect(&ipc.Command{}),
			"response": jsonschema.Reflect(&ipc.Response{}),
			"event":    jsonschema.Reflect(&ipc.Event{}),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", ipc.DefaultSocketPath(), "daemon control socket")
	rootCmd.PersistentFlags().StringVar(&session, "session", ipc.DefaultSession, "conversation id")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw responses")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "number of entries")

	rootCmd.AddCommand(
		startCmd,
		simple("stop", "Stop and save the dictation", "stop", cobra.NoArgs, func(r ipc.Response) {
			fmt.Println("saved to", r.Path)
		}),
		simple("say <text...>", "Submit an utterance", "utterance", cobra.MinimumNArgs(1), func(r ipc.Response) {
			switch {
			case r.Claimed != nil && !*r.Claimed:
				fmt.Println("not claimed")
			case r.Dictating != nil && *r.Dictating:
				fmt.Printf("captured (%d)\n", *r.Count)
			default:
				fmt.Println("ok")
			}
		}),
		simple("undo", "Remove the last utterance", "undo", cobra.NoArgs, func(r ipc.Response) {
			fmt.Println("removed:", r.Text)
		}),
		simple("complete <text...>", "Autocomplete text into the dictation", "complete", cobra.MinimumNArgs(1), func(r ipc.Response) {
			fmt.Println(r.Text)
		}),
		simple("status", "Show the session state", "status", cobra.NoArgs, func(r ipc.Response) {
			if r.Dictating != nil && *r.Dictating {
				fmt.Printf("dictating %s (%d utterances)\n", r.Target, *r.Count)
				return
			}
			fmt.Println("idle")
		}),
		simple("sessions", "List known sessions", "sessions", cobra.NoArgs, func(r ipc.Response) {
			for _, s := range r.Sessions {
				state := "idle"
				if s.Dictating {
					state = "dictating " + s.Target
				}
				fmt.Printf("%-16s %s (%d)\n", s.ID, state, s.Utterances)
			}
		}),
		simple("read", "Print the last saved dictation", "read", cobra.NoArgs, func(r ipc.Response) {
			fmt.Printf("# %s (%s)\n%s\n", r.Target, r.Path, r.Text)
		}),
		listCmd,
		monitorCmd,
		mcpCmd,
		schemaCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
