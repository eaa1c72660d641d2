package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/novacat/novacat/internal/config"
	"github.com/novacat/novacat/internal/printer"
	"github.com/novacat/novacat/internal/resolver"
	"github.com/novacat/novacat/pkg/catalog"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "novacat",
	Short: "Nova Cat - idempotent spectra acquisition and validation",
	Long: `Nova Cat acquires and validates spectra data products for novae.

Discovery assigns stable product identities to externally-sourced records,
the coordinator acquires and validates bytes with at-most-one-effect
semantics, and quarantined products wait for human review. All state lives
in Redis behind conditional writes, so invocations are safe to replay.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to novacat.yml (default: ./novacat.yml)")
}

// openStore loads configuration and connects the catalog store.
func openStore() (*catalog.Store, *config.NovaCatConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	store := catalog.NewStore(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return store, cfg, nil
}

// resolveProductArg expands a product argument that may be a short ID prefix.
func resolveProductArg(ctx context.Context, store *catalog.Store, novaID, arg string) (string, error) {
	productID, err := resolver.ResolveProductID(ctx, store, novaID, arg)
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		if errors.As(err, &ambiguous) {
			fmt.Println(resolver.FormatAmbiguousError(ambiguous))
			return "", errors.New(ambiguous.Error())
		}
		return "", printer.Errorf("%v", err)
	}
	return productID, nil
}
