package main

import (
	"fmt"
	"math"
	"os"

	"github.com/sashabaranov/go-openai"
	"github.com/schollz/progressbar/v3"

	"github.com/alint77/llm-oai-tpsbench/internal/api"
)

func roundToSixDecimals(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

// run performs the single measured request and turns the response into
// a result record. The server-reported usage count wins over local
// counting when present.
func (benchmark *Benchmark) run(client *openai.Client) (BenchmarkResult, error) {
	var bar *progressbar.ProgressBar
	if benchmark.ShowProgress && benchmark.Stream {
		// The bar writes to stderr so stdout stays a single JSON object.
		bar = progressbar.NewOptions(benchmark.MaxTokens,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("generating"),
			progressbar.OptionShowCount(),
		)
	}

	var resp api.Response
	var err error
	switch {
	case benchmark.Endpoint == EndpointChat && benchmark.Stream:
		resp, err = api.AskChatStream(client, benchmark.ModelName, benchmark.Prompt, benchmark.MaxTokens, bar)
	case benchmark.Endpoint == EndpointChat:
		resp, err = api.AskChat(client, benchmark.ModelName, benchmark.Prompt, benchmark.MaxTokens)
	case benchmark.Stream:
		resp, err = api.AskCompletionStream(client, benchmark.ModelName, benchmark.Prompt, benchmark.MaxTokens, bar)
	default:
		resp, err = api.AskCompletion(client, benchmark.ModelName, benchmark.Prompt, benchmark.MaxTokens)
	}
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return BenchmarkResult{}, err
	}

	numTokens := resp.UsageTokens
	if numTokens == 0 {
		numTokens = benchmark.Counter.Count(resp.Text)
	}

	mode := "non-stream"
	if benchmark.Stream {
		mode = "stream"
	}

	result := BenchmarkResult{
		Mode:           mode,
		Tokens:         numTokens,
		ElapsedSeconds: roundToSixDecimals(resp.Elapsed),
	}
	if resp.Elapsed > 0 {
		result.TokensPerSecond = roundToSixDecimals(float64(numTokens) / resp.Elapsed)
	}
	return result, nil
}
