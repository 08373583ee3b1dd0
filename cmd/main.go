package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/alint77/llm-oai-tpsbench/internal/api"
	"github.com/alint77/llm-oai-tpsbench/internal/tokens"
)

func main() {
	host := pflag.String("host", "127.0.0.1", "Server host")
	port := pflag.Int("port", 8080, "Server port")
	baseURL := pflag.StringP("base-url", "u", "", "Base URL of the OpenAI API (overrides --host/--port)")
	apiKey := pflag.StringP("api-key", "k", "", "API key for the Authorization header")
	model := pflag.StringP("model", "m", "", "Model to benchmark (discovered from the server when empty)")
	prompt := pflag.StringP("prompt", "p", "", "Prompt to be used for generating the response")
	endpoint := pflag.StringP("endpoint", "e", EndpointChat, "Endpoint to call: chat or completions")
	stream := pflag.BoolP("stream", "s", false, "Use a streaming response")
	maxTokens := pflag.IntP("max-tokens", "t", 512, "Maximum number of tokens to generate")
	timeout := pflag.Duration("timeout", 2*time.Minute, "HTTP client timeout (0 disables it)")
	format := pflag.StringP("format", "f", "json", "Output format: json or yaml")
	progress := pflag.Bool("progress", false, "Show a token progress bar on stderr while streaming")
	help := pflag.BoolP("help", "h", false, "Show this help message")
	pflag.Parse()

	if *help {
		fmt.Printf("Usage of %s:\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(0)
	}

	if err := validate(*prompt, *endpoint, *port, *format); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	resolvedURL := *baseURL
	if resolvedURL == "" {
		resolvedURL = fmt.Sprintf("http://%s:%d/v1", *host, *port)
	}

	client := api.NewClient(resolvedURL, *apiKey, *timeout)

	// Discover model name if not provided
	modelName := *model
	if modelName == "" {
		discoveredModel, err := api.GetFirstAvailableModel(client)
		if err != nil {
			fmt.Fprintf(os.Stderr, "no model given and discovery failed: %v\n", err)
			os.Exit(2)
		}
		modelName = discoveredModel
	}

	benchmark := Benchmark{
		BaseURL:      resolvedURL,
		ApiKey:       *apiKey,
		ModelName:    modelName,
		Prompt:       *prompt,
		Endpoint:     *endpoint,
		Stream:       *stream,
		MaxTokens:    *maxTokens,
		ShowProgress: *progress,
		Counter:      tokens.ForModel(modelName),
	}

	result, err := benchmark.run(client)
	if err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}

	var output string
	if *format == "yaml" {
		output, err = result.Yaml()
	} else {
		output, err = result.Json()
	}
	if err != nil {
		log.Fatalf("Error formatting result: %v", err)
	}
	fmt.Println(output)
}

func validate(prompt, endpoint string, port int, format string) error {
	if prompt == "" {
		return fmt.Errorf("--prompt is required")
	}
	if endpoint != EndpointChat && endpoint != EndpointCompletions {
		return fmt.Errorf("invalid --endpoint %q: must be chat or completions", endpoint)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid --port %d", port)
	}
	if format != "json" && format != "yaml" {
		return fmt.Errorf("invalid --format %q: must be json or yaml", format)
	}
	return nil
}
