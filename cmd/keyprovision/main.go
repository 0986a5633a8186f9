// Command keyprovision generates a root key for the server and
// Shamir-splits it into shards an operator can distribute out of band,
// or reconstructs a root key from a threshold of previously issued
// shards. It never talks to a running server; it only produces the
// KEYWHIZ_ROOT_KEY value cmd/server expects.
package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarvex/keywhiz/internal/crypto"
)

var rootCmd = &cobra.Command{
	Use:   "keyprovision",
	Short: "Generate and split root keys for a keywhiz server",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(combineCmd())
}

func generateCmd() *cobra.Command {
	var shares, threshold int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a root key and split it into shards",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateRootKey()
			if err != nil {
				return err
			}
			shards, err := crypto.SplitRootKey(key, shares, threshold)
			if err != nil {
				return err
			}
			fmt.Printf("Root key (KEYWHIZ_ROOT_KEY, keep only for local dev): %s\n\n", base64.StdEncoding.EncodeToString(key))
			fmt.Printf("Distribute these %d shards; any %d reconstruct the key:\n", shares, threshold)
			for _, shard := range shards {
				fmt.Printf("  %s\n", shard.Text())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&shares, "shares", 5, "number of shards to produce")
	cmd.Flags().IntVar(&threshold, "threshold", 3, "number of shards required to reconstruct")
	return cmd
}

func combineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Reconstruct a root key from shards (reads \"index:hex\" shards, one per line, from stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var shards []crypto.Shard
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				shard, err := crypto.ParseShard(line)
				if err != nil {
					return fmt.Errorf("parsing shard: %w", err)
				}
				shards = append(shards, shard)
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			key, err := crypto.CombineShards(shards)
			if err != nil {
				return err
			}
			fmt.Println(base64.StdEncoding.EncodeToString(key))
			return nil
		},
	}
	return cmd
}
