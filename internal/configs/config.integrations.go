package configs

import "time"

type Integrations struct {
	LLM IntegrationsLLM `yaml:"LLM"`
}

type IntegrationsLLM struct {
	Enabled          ConfigBool   `yaml:"Enabled" env:"LLM_ENABLED"` // Whether LLM integration is enabled
	Provider         ConfigString `yaml:"Provider"`                  // The LLM provider ("ollama" or "openai")
	Model            ConfigString `yaml:"Model"`                     // The model used for NPC lines
	LowCostModel     ConfigString `yaml:"LowCostModel"`              // Model used for speaker selection and intents
	BaseURL          ConfigString `yaml:"BaseURL" env:"LLM_BASE_URL"`
	APIKey           ConfigSecret `yaml:"APIKey" env:"LLM_API_KEY"`
	Temperature      ConfigFloat  `yaml:"Temperature"`      // Temperature for response generation (0.0-1.0)
	MaxTokens        ConfigInt    `yaml:"MaxTokens"`        // Upper bound on generated tokens
	MaxContextLength ConfigInt    `yaml:"MaxContextLength"` // Maximum number of history entries sent for speaker selection
	Timeout          ConfigFloat  `yaml:"Timeout"`          // Seconds per HTTP request
	Tokenizer        ConfigString `yaml:"Tokenizer"`        // "estimate" or "tiktoken"
}

func defaultIntegrations() Integrations {
	return Integrations{
		LLM: IntegrationsLLM{
			Enabled:          true,
			Provider:         `ollama`,
			Model:            `llama3`,
			BaseURL:          `http://localhost:11434`,
			Temperature:      0.7,
			MaxTokens:        300,
			MaxContextLength: 10,
			Timeout:          30,
			Tokenizer:        `estimate`,
		},
	}
}

func (i *Integrations) Validate() {

	// Validate LLM settings
	if i.LLM.Temperature < 0.0 {
		i.LLM.Temperature = 0.7 // Default temperature
	} else if i.LLM.Temperature > 1.0 {
		i.LLM.Temperature = 1.0 // Cap at 1.0
	}

	if i.LLM.MaxContextLength < 1 {
		i.LLM.MaxContextLength = 10 // Default context length
	} else if i.LLM.MaxContextLength > 50 {
		i.LLM.MaxContextLength = 50 // Cap at 50 turns
	}

	if i.LLM.MaxTokens < 1 {
		i.LLM.MaxTokens = 300
	}

	if i.LLM.Provider == `` {
		i.LLM.Provider = `ollama` // Default provider
	}

	if i.LLM.Model == `` {
		i.LLM.Model = `llama3` // Default model
	}

	if i.LLM.LowCostModel == `` {
		i.LLM.LowCostModel = i.LLM.Model
	}

	if i.LLM.BaseURL == `` {
		i.LLM.BaseURL = `http://localhost:11434` // Default Ollama URL
	}

	if i.LLM.Timeout <= 0 {
		i.LLM.Timeout = 30
	}

	if i.LLM.Tokenizer != `tiktoken` {
		i.LLM.Tokenizer = `estimate`
	}
}

func (l IntegrationsLLM) TimeoutDuration() time.Duration {
	return seconds(l.Timeout)
}

func GetIntegrationsConfig() Integrations {
	return GetConfig().Integrations
}
