// Package openaicompat implements provider.Provider for any backend that
// speaks the OpenAI Chat Completions protocol over plain HTTP (vLLM,
// LiteLLM, Ollama, llama.cpp server). It needs no SDK and supports model
// name mapping for proxies that route by model alias.
package openaicompat
