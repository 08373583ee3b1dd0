package main

import "github.com/alint77/llm-oai-tpsbench/internal/tokens"

// Endpoint kinds accepted by --endpoint.
const (
	EndpointChat        = "chat"
	EndpointCompletions = "completions"
)

// Benchmark is the resolved configuration for one run. Built once from
// CLI input, read-only afterwards.
type Benchmark struct {
	BaseURL      string
	ApiKey       string
	ModelName    string
	Prompt       string
	Endpoint     string
	Stream       bool
	MaxTokens    int
	ShowProgress bool

	// Counter is the local token counter used when the server reports
	// no usage. Chosen at startup for the resolved model.
	Counter tokens.Counter
}

type BenchmarkResult struct {
	Mode            string  `json:"mode" yaml:"mode"`
	Tokens          int     `json:"tokens" yaml:"tokens"`
	ElapsedSeconds  float64 `json:"elapsed_seconds" yaml:"elapsed-seconds"`
	TokensPerSecond float64 `json:"tokens_per_second" yaml:"tokens-per-second"`
}
