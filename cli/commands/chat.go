package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roraos/roraos-go/cli/keystore"
	"github.com/roraos/roraos-go/core"
	"github.com/roraos/roraos-go/roraos"
	"github.com/roraos/roraos-go/store/sqlite"
)

// Exit codes
const (
	ExitSuccess    = 0
	ExitValidation = 1
	ExitProvider   = 2
	ExitNetwork    = 3
)

// keystoreName is the entry holding the RoraOS API key.
const keystoreName = "roraos"

var (
	prompt      string
	system      string
	temperature float32
	maxTokens   int
	stream      bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a model",
	Long: `Chat with a model, one-shot or interactively.

With --prompt the command sends a single message and exits. Without it
an interactive session starts that keeps conversation history.

Examples:
  roraos chat --model gpt-4o --prompt "Hello"
  roraos chat --prompt "Hello" --stream
  roraos chat`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&prompt, "prompt", "", "User message (omit for interactive mode)")
	chatCmd.Flags().StringVar(&system, "system", "", "System message")
	chatCmd.Flags().Float32Var(&temperature, "temperature", 0, "Temperature (0 = use default)")
	chatCmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Max tokens (0 = use default)")
	chatCmd.Flags().BoolVar(&stream, "stream", false, "Enable streaming output")
}

// resolveAPIKey checks the environment first, then the keystore.
func resolveAPIKey() (string, error) {
	if key := os.Getenv(roraos.DefaultAPIKeyEnvVar); key != "" {
		return key, nil
	}

	ks, err := keystore.NewKeystore()
	if err != nil {
		return "", fmt.Errorf("failed to open keystore: %w", err)
	}

	key, err := ks.Get(keystoreName)
	if err != nil {
		var notFound *keystore.ErrKeyNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("no API key found: set %s or run 'roraos keys set'", roraos.DefaultAPIKeyEnvVar)
		}
		return "", fmt.Errorf("failed to get API key: %w", err)
	}
	return key, nil
}

// newClient builds a client from the resolved API key and config.
func newClient() (*core.Client, error) {
	apiKey, err := resolveAPIKey()
	if err != nil {
		return nil, err
	}

	var opts []roraos.Option
	if cfg := GetConfig(); cfg != nil && cfg.BaseURL != "" {
		opts = append(opts, roraos.WithBaseURL(cfg.BaseURL))
	}

	return core.NewClient(roraos.New(apiKey, opts...)), nil
}

func runChat(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return exitWithCode(ExitValidation, err)
	}

	ctx := context.Background()

	if prompt == "" {
		return runInteractiveChat(ctx, client)
	}

	builder := client.Chat(core.ModelID(GetModel()))
	if system != "" {
		builder = builder.System(system)
	}
	builder = builder.User(prompt)
	if temperature > 0 {
		builder = builder.Temperature(temperature)
	}
	if maxTokens > 0 {
		builder = builder.MaxTokens(maxTokens)
	}

	if stream {
		return runStreamingChat(ctx, builder)
	}
	return runNonStreamingChat(ctx, builder)
}

func runNonStreamingChat(ctx context.Context, builder *core.ChatBuilder) error {
	resp, err := builder.GetResponse(ctx)
	if err != nil {
		return handleChatError(err)
	}

	if IsJSONOutput() {
		return outputJSON(resp)
	}

	fmt.Printf("> %s\n", prompt)
	fmt.Println(resp.Output)
	return nil
}

func runStreamingChat(ctx context.Context, builder *core.ChatBuilder) error {
	chatStream, err := builder.Stream(ctx)
	if err != nil {
		return handleChatError(err)
	}

	if IsJSONOutput() {
		// Accumulate for JSON output
		resp, err := core.DrainStream(ctx, chatStream)
		if err != nil {
			return handleChatError(err)
		}
		return outputJSON(resp)
	}

	fmt.Printf("> %s\n", prompt)

	for chunk := range chatStream.Ch {
		fmt.Print(chunk.Delta)
	}

	// Err and Final are always closed once the stream ends, so these
	// reads do not block past completion.
	streamErr := <-chatStream.Err
	finalResp := <-chatStream.Final

	fmt.Println()

	if streamErr != nil {
		return handleChatError(streamErr)
	}

	if IsVerbose() && finalResp != nil {
		fmt.Fprintf(os.Stderr, "Usage: %d prompt + %d completion = %d total tokens\n",
			finalResp.Usage.PromptTokens,
			finalResp.Usage.CompletionTokens,
			finalResp.Usage.TotalTokens)
	}

	return nil
}

// newStore picks the history backend from config.
func newStore() (core.Store, func(), error) {
	c := GetConfig()
	max := core.DefaultMaxMessages
	if c != nil && c.History.MaxMessages > 0 {
		max = c.History.MaxMessages
	}

	if c != nil && c.History.Path != "" {
		st, err := sqlite.Open(c.History.Path, max)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open history database: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	}

	return core.NewMemoryStore(max), func() {}, nil
}

func runInteractiveChat(ctx context.Context, client *core.Client) error {
	store, closeStore, err := newStore()
	if err != nil {
		return exitWithCode(ExitValidation, err)
	}
	defer closeStore()

	c := GetConfig()
	opts := []core.ConversationOption{core.WithStore(store)}
	if system != "" {
		opts = append(opts, core.WithSystemPrompt(system))
	} else if c != nil && c.SystemPrompt != "" {
		opts = append(opts, core.WithSystemPrompt(c.SystemPrompt))
	}
	if temperature > 0 {
		opts = append(opts, core.WithTemperature(temperature))
	}
	if maxTokens > 0 {
		opts = append(opts, core.WithMaxTokens(maxTokens))
	}
	if c != nil && c.Summarize.Enabled {
		opts = append(opts, core.WithSummarization(core.SummarizeConfig{
			Enabled:   true,
			Threshold: c.Summarize.Threshold,
			KeepTail:  c.Summarize.KeepTail,
		}))
	}

	conv := core.NewConversation(client, "cli", core.ModelID(GetModel()), opts...)

	fmt.Printf("Chatting with %s. Type /exit to quit, /clear to reset, /save <file> and /load <file> for transcripts.\n", GetModel())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := runReplCommand(ctx, conv, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		if err := streamTurn(ctx, conv, line); err != nil {
			printChatError(err)
		}
	}
}

// runReplCommand handles slash commands. Returns true when the session
// should end.
func runReplCommand(ctx context.Context, conv *core.Conversation, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		return true, nil
	case "/clear":
		if err := conv.Clear(ctx); err != nil {
			return false, err
		}
		fmt.Println("Conversation cleared.")
		return false, nil
	case "/save":
		if arg == "" {
			return false, fmt.Errorf("usage: /save <file>")
		}
		return false, saveTranscript(ctx, conv, arg)
	case "/load":
		if arg == "" {
			return false, fmt.Errorf("usage: /load <file>")
		}
		return false, loadTranscript(ctx, conv, arg)
	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
}

func saveTranscript(ctx context.Context, conv *core.Conversation, path string) error {
	t, err := conv.Export(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return err
	}
	fmt.Printf("Saved %d messages to %s\n", len(t.Messages), path)
	return nil
}

func loadTranscript(ctx context.Context, conv *core.Conversation, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var t core.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	if err := conv.Import(ctx, &t); err != nil {
		return err
	}
	fmt.Printf("Loaded %d messages from %s\n", len(t.Messages), path)
	return nil
}

// streamTurn sends one user message and prints the reply as it arrives.
func streamTurn(ctx context.Context, conv *core.Conversation, text string) error {
	chatStream, err := conv.Stream(ctx, text)
	if err != nil {
		return err
	}

	for chunk := range chatStream.Ch {
		fmt.Print(chunk.Delta)
	}
	fmt.Println()

	if err := <-chatStream.Err; err != nil {
		return err
	}
	return nil
}

// printChatError reports a turn failure without ending the session.
func printChatError(err error) {
	var provErr *core.ProviderError
	if errors.As(err, &provErr) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", provErr.Message)
		if provErr.RequestID != "" {
			fmt.Fprintf(os.Stderr, "  Request ID: %s\n", provErr.RequestID)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func handleChatError(err error) error {
	var provErr *core.ProviderError
	if errors.As(err, &provErr) {
		if IsJSONOutput() {
			outputErrorJSON(provErr)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", provErr.Message)
			if provErr.RequestID != "" {
				fmt.Fprintf(os.Stderr, "  Request ID: %s\n", provErr.RequestID)
			}
		}

		// Determine exit code based on error type
		switch {
		case errors.Is(err, core.ErrNetwork):
			return exitWithCode(ExitNetwork, err)
		default:
			return exitWithCode(ExitProvider, err)
		}
	}

	// Network errors
	if errors.Is(err, core.ErrNetwork) {
		if IsJSONOutput() {
			outputSimpleErrorJSON("network_error", err.Error())
		} else {
			fmt.Fprintf(os.Stderr, "Error: network error: %v\n", err)
		}
		return exitWithCode(ExitNetwork, err)
	}

	// Validation errors
	if errors.Is(err, core.ErrNoMessages) ||
		errors.Is(err, core.ErrTemperatureRange) ||
		errors.Is(err, core.ErrMaxTokens) {
		if IsJSONOutput() {
			outputSimpleErrorJSON("validation_error", err.Error())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return exitWithCode(ExitValidation, err)
	}

	// Generic error
	if IsJSONOutput() {
		outputSimpleErrorJSON("error", err.Error())
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitWithCode(ExitProvider, err)
}

func outputJSON(resp *core.ChatResponse) error {
	output := map[string]interface{}{
		"id":     resp.ID,
		"model":  resp.Model,
		"output": resp.Output,
		"usage": map[string]int{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func outputErrorJSON(provErr *core.ProviderError) {
	output := map[string]interface{}{
		"error": map[string]interface{}{
			"status":     provErr.Status,
			"message":    provErr.Message,
			"request_id": provErr.RequestID,
		},
	}

	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	enc.Encode(output)
}

func outputSimpleErrorJSON(errType, message string) {
	output := map[string]interface{}{
		"error": map[string]interface{}{
			"type":    errType,
			"message": message,
		},
	}

	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	enc.Encode(output)
}

// exitError wraps an error with an exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) ExitCode() int {
	return e.code
}

func exitWithCode(code int, err error) error {
	return &exitError{code: code, err: err}
}
