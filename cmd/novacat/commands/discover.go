package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/novacat/novacat/internal/discovery"
	"github.com/novacat/novacat/internal/printer"
	"github.com/novacat/novacat/internal/provider"
)

var (
	discoverNovaID   string
	discoverProvider string
	discoverInput    string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Ingest discovered provider records as product stubs",
	Long: `Reads line-delimited JSON records (objects of string fields, e.g.
{"native_id":"NGC1","url":"https://archive.example/spec/1.fits"}) from a
file or stdin, derives stable locator identities, and creates product stubs.
Rediscovering a known record reuses its existing product ID.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverNovaID, "nova", "", "nova UUID the records belong to (required)")
	discoverCmd.Flags().StringVar(&discoverProvider, "provider", "", "provider name for the records (required)")
	discoverCmd.Flags().StringVar(&discoverInput, "input", "-", "records file, or - for stdin")
	discoverCmd.MarkFlagRequired("nova")
	discoverCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return printer.Errorf("failed to open catalog: %v", err)
	}
	defer store.Close()

	var input io.Reader = os.Stdin
	if discoverInput != "-" {
		file, err := os.Open(discoverInput)
		if err != nil {
			return printer.Errorf("failed to open input: %v", err)
		}
		defer file.Close()
		input = file
	}

	registry := provider.NewRegistry()
	if err := registry.Register(discoverProvider, provider.NewHTTPAdapter(nil)); err != nil {
		return printer.Errorf("failed to register provider: %v", err)
	}
	ingestor := discovery.NewIngestor(store, registry)
	correlationID := uuid.New().String()

	var created, reused, failed int
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw map[string]string
		if err := json.Unmarshal(line, &raw); err != nil {
			printer.Warning("skipping malformed record: %v\n", err)
			failed++
			continue
		}

		result := ingestor.IngestRaw(cmd.Context(), discoverNovaID, discoverProvider, correlationID, raw)
		switch result.Result {
		case discovery.ResultCreated:
			created++
			printer.Success("created %s (%s)\n", result.ProductID, result.LocatorIdentity)
		case discovery.ResultReused:
			reused++
			printer.Info("reused  %s (%s)\n", result.ProductID, result.LocatorIdentity)
		default:
			failed++
			printer.Warning("failed: %v\n", result.Err)
		}
		if result.WeakIdentity {
			printer.Warning("weak identity for %s; dedup deferred to content fingerprint\n", result.ProductID)
		}
	}
	if err := scanner.Err(); err != nil {
		return printer.Errorf("failed to read records: %v", err)
	}

	fmt.Printf("\n%d created, %d reused, %d failed\n", created, reused, failed)
	if failed > 0 {
		return fmt.Errorf("%d records failed", failed)
	}
	return nil
}
