package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	typesAddr  string
	typesQuery string
	typesKind  string
	typesToken string
)

var typesListCmd = &cobra.Command{
	Use:   "types:list",
	Short: "List node types from a running registry",
	Long: `List node types from a running registry as JSON.

Queries the registry's HTTP API and prints the response to stdout.
Use --q to filter by a node_type_id substring and --kind to filter by
node kind (atomic or composite). Filters combine with AND logic.

Examples:
  # List all node types
  arp-node-registry types:list

  # Filter by id substring
  arp-node-registry types:list --q echo

  # Filter by kind
  arp-node-registry types:list --kind atomic

  # Combine filters (AND logic - must match both)
  arp-node-registry types:list --q echo --kind atomic

  # Against a non-default address, with a bearer token
  arp-node-registry types:list --addr localhost:9090 --token "$ARP_REGISTRY_TOKEN"

  # Parse specific fields with jq
  arp-node-registry types:list | jq '.node_types[].node_type_id'
  arp-node-registry types:list | jq '.total'`,
	RunE: runTypesList,
}

func init() {
	typesListCmd.Flags().StringVar(&typesAddr, "addr", "", "Registry address (default: config addr)")
	typesListCmd.Flags().StringVar(&typesQuery, "q", "", "Filter by node_type_id substring")
	typesListCmd.Flags().StringVar(&typesKind, "kind", "", "Filter by node kind (atomic or composite)")
	typesListCmd.Flags().StringVar(&typesToken, "token", "", "Bearer token (default: auth config or ARP_REGISTRY_TOKEN)")
	rootCmd.AddCommand(typesListCmd)
}

func runTypesList(_ *cobra.Command, _ []string) error {
	addr := typesAddr
	if addr == "" {
		addr = cfg.Addr
	}

	query := url.Values{}
	if typesQuery != "" {
		query.Set("q", typesQuery)
	}
	if typesKind != "" {
		query.Set("kind", typesKind)
	}

	endpoint := url.URL{
		Scheme:   "http",
		Host:     addr,
		Path:     "/v1/node-types",
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequest(http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	token := typesToken
	if token == "" {
		token, _ = cfg.Auth.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("querying registry at %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry returned %s: %s", resp.Status, string(body))
	}

	_, err = os.Stdout.Write(body)
	return err
}
