// Package autoload registers every built-in LLM provider.
package autoload

import (
	_ "opsagent/pkg/llm/anthropic"
	_ "opsagent/pkg/llm/gemini"
	_ "opsagent/pkg/llm/ollama"
	_ "opsagent/pkg/llm/openailm"
)
