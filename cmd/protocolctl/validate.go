package main

import (
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/aiproto/runtime/manifeststore"
	"github.com/aiproto/runtime/protocol"
)

var strict bool

// validateCmd implements the "Exit codes / return codes of validation tool"
// line from the external interface: exits 0 when every v1/providers/*.yaml
// manifest under <dir> loads, promotes, and validates cleanly, or non-zero
// with a printed count of invalid manifests otherwise.
var validateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate every manifest under <dir>/v1/providers.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		store := manifeststore.New(dir)

		ids, err := store.IDs()
		if err != nil {
			return fmt.Errorf("protocolctl: listing manifests under %s: %w", dir, err)
		}
		if len(ids) == 0 {
			fmt.Printf("protocolctl: no manifests found under %s/v1/providers\n", dir)
			return nil
		}

		invalid := 0
		for _, id := range ids {
			manifest, err := store.Load(id)
			if err != nil {
				fmt.Printf("FAIL %s: %v\n", id, err)
				invalid++
				continue
			}
			if strict {
				if err := checkPromotionIdempotent(manifest); err != nil {
					fmt.Printf("FAIL %s: %v\n", id, err)
					invalid++
					continue
				}
			}
			fmt.Printf("OK   %s\n", id)
		}

		if invalid > 0 {
			return fmt.Errorf("protocolctl: %d of %d manifest(s) invalid", invalid, len(ids))
		}
		fmt.Printf("protocolctl: %d manifest(s) valid\n", len(ids))
		return nil
	},
}

// checkPromotionIdempotent re-promotes a manifest's already-promoted
// capability set and requires it to come back unchanged, catching any
// PromoteCapabilities regression that would silently drift a manifest's
// effective capabilities across a reload.
func checkPromotionIdempotent(manifest *protocol.Manifest) error {
	first := manifest.CapabilitySet()
	second := protocol.PromoteCapabilities(protocol.RawCapabilities{
		Required:     first.Required,
		Optional:     first.Optional,
		FeatureFlags: first.FeatureFlags,
	})
	if !reflect.DeepEqual(*first, second) {
		return fmt.Errorf("capability promotion is not idempotent: %+v != %+v", *first, second)
	}
	return nil
}

func init() {
	validateCmd.Flags().BoolVar(&strict, "strict", false, "also check capability promotion idempotency")
	rootCmd.AddCommand(validateCmd)
}
