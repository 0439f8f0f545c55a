// Package provider defines the protocol-agnostic interface for LLM chat
// backends. Each adapter (openaicompat, openai, anthropic) handles its own
// backend protocol internally and operates on tabula's own types
// (Request, Response), keeping backend details invisible to the oracle.
package provider
