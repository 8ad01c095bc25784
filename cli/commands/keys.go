package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roraos/roraos-go/cli/keystore"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long:  `Manage API keys. Keys are stored encrypted on disk.`,
}

var keysSetCmd = &cobra.Command{
	Use:   "set [name]",
	Short: "Store an API key",
	Long:  `Store an API key. The key will be prompted without echo for security.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKeysSet,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored API keys",
	Long:  `List all stored API keys. Only names are shown, never key values.`,
	RunE:  runKeysList,
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a stored API key",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKeysDelete,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysDeleteCmd)
}

func keyName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return keystoreName
}

func runKeysSet(cmd *cobra.Command, args []string) error {
	name := keyName(args)

	fmt.Printf("Enter API key for %s: ", name)

	// Read without echo if terminal
	var apiKey string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
		apiKey = string(keyBytes)
		fmt.Println() // Newline after hidden input
	} else {
		// Fallback for non-terminal (e.g., piped input)
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
		apiKey = strings.TrimSpace(line)
	}

	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	ks, err := keystore.NewKeystore()
	if err != nil {
		return fmt.Errorf("failed to open keystore: %w", err)
	}

	if err := ks.Set(name, apiKey); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}

	fmt.Printf("API key %s stored successfully.\n", name)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	ks, err := keystore.NewKeystore()
	if err != nil {
		return fmt.Errorf("failed to open keystore: %w", err)
	}

	names, err := ks.List()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(names) == 0 {
		fmt.Println("No API keys stored.")
		return nil
	}

	fmt.Println("Stored keys:")
	for _, name := range names {
		fmt.Printf("  - %s\n", name)
	}

	return nil
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	name := keyName(args)

	ks, err := keystore.NewKeystore()
	if err != nil {
		return fmt.Errorf("failed to open keystore: %w", err)
	}

	if err := ks.Delete(name); err != nil {
		var notFound *keystore.ErrKeyNotFound
		if errors.As(err, &notFound) {
			return fmt.Errorf("no key stored as %s", name)
		}
		return fmt.Errorf("failed to delete key: %w", err)
	}

	fmt.Printf("API key %s deleted.\n", name)
	return nil
}
