package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mvp-joe/ccindex/internal/graph"
	"github.com/mvp-joe/ccindex/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	queryIndex      string
	queryDepth      int
	queryMaxResults int
	queryContext    bool
	queryJSON       bool
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the call graph of an index",
	Long: `query answers questions about the call graph stored in an index written
by build-log.

Examples:
  # Who calls parse_args, up to three levels up
  ccindex query callers parse_args --index index.json --depth 3

  # What does main call, with each callee's code
  ccindex query callees main --index index.json --context

  # How does main reach exit
  ccindex query path main exit --index index.json
`,
}

var queryCallersCmd = &cobra.Command{
	Use:   "callers <function>",
	Short: "List functions that call a function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, &graph.QueryRequest{Operation: graph.OperationCallers, Target: args[0]})
	},
}

var queryCalleesCmd = &cobra.Command{
	Use:   "callees <function>",
	Short: "List functions called by a function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, &graph.QueryRequest{Operation: graph.OperationCallees, Target: args[0]})
	},
}

var queryPathCmd = &cobra.Command{
	Use:   "path <from> <to>",
	Short: "Show the shortest call chain between two functions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, &graph.QueryRequest{Operation: graph.OperationPath, Target: args[0], To: args[1]})
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.AddCommand(queryCallersCmd, queryCalleesCmd, queryPathCmd)

	queryCmd.PersistentFlags().StringVarP(&queryIndex, "index", "i", "out.json", "Index written by build-log")
	queryCmd.PersistentFlags().IntVarP(&queryDepth, "depth", "d", graph.DefaultDepth, fmt.Sprintf("Traversal depth (max %d)", graph.MaxDepth))
	queryCmd.PersistentFlags().IntVar(&queryMaxResults, "max-results", graph.DefaultMaxResults, "Maximum number of results")
	queryCmd.PersistentFlags().BoolVar(&queryContext, "context", false, "Include each function's code")
	queryCmd.PersistentFlags().BoolVar(&queryJSON, "json", false, "Print the response as JSON")
}

func runQuery(cmd *cobra.Command, req *graph.QueryRequest) error {
	cmd.SilenceUsage = true

	rootDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	indexPath := pipeline.ResolveOutputPath(rootDir, queryIndex)
	if err := requireFile(indexPath); err != nil {
		return err
	}

	searcher, err := graph.NewSearcher(graph.NewFileStorage(indexPath))
	if err != nil {
		return err
	}
	defer searcher.Close()

	req.Depth = queryDepth
	req.MaxResults = queryMaxResults
	req.IncludeContext = queryContext

	resp, err := searcher.Query(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printQueryResponse(out, req, resp)
	return nil
}

func printQueryResponse(out io.Writer, req *graph.QueryRequest, resp *graph.QueryResponse) {
	if len(resp.Results) == 0 {
		if req.Operation == graph.OperationPath {
			fmt.Fprintf(out, "No call path from %s to %s\n", req.Target, req.To)
		} else {
			fmt.Fprintf(out, "No %s found for %s\n", req.Operation, req.Target)
		}
		return
	}

	if req.Operation == graph.OperationPath {
		ids := make([]string, len(resp.Results))
		for i, r := range resp.Results {
			ids[i] = r.Node.ID
		}
		fmt.Fprintln(out, strings.Join(ids, " -> "))
	} else {
		for _, r := range resp.Results {
			indent := strings.Repeat("  ", r.Depth-1)
			location := string(r.Node.Kind)
			if len(r.Node.Files) > 0 {
				location = strings.Join(r.Node.Files, ", ")
			}
			fmt.Fprintf(out, "%s%s (%s)\n", indent, r.Node.ID, location)
		}
	}

	if req.IncludeContext {
		for _, r := range resp.Results {
			if r.Context == "" {
				continue
			}
			fmt.Fprintf(out, "\n// %s\n%s\n", r.Node.ID, r.Context)
		}
	}

	if resp.Truncated {
		fmt.Fprintf(out, "(showing %d of %d)\n", resp.TotalReturned, resp.TotalFound)
	}
}
