package bootstrap

import (
	"neurodata/internal/adapter/provider/llm/openai"
	applog "neurodata/internal/platform/log"
	"neurodata/internal/provider"
)

// RegisterLLMProviders registers configured LLM providers.
func RegisterLLMProviders(apiKey, baseURL string) {
	if apiKey == "" {
		applog.Warn("⚠️  No OPENAI_API_KEY set, inference and the workflow wizard will not work")
		return
	}

	p := openai.New(openai.Config{
		APIKey:  apiKey,
		BaseURL: baseURL,
	})
	provider.RegisterProvider(p)
	applog.Infof("✅ Registered LLM provider: %s (base: %s)", p.Name(), baseURL)
}
