package configs

import "time"

type Conversations struct {
	ChatEnabled            ConfigBool   `yaml:"ChatEnabled" env:"PALAVER_CHAT_ENABLED"` // Whether NPCs answer automatically
	ChatRadius             ConfigFloat  `yaml:"ChatRadius"`                             // Distance a player may stray from the NPCs
	ResponseDelay          ConfigFloat  `yaml:"ResponseDelay"`                          // Seconds of quiet before NPCs respond
	ProximityCheckInterval ConfigFloat  `yaml:"ProximityCheckInterval"`                 // Seconds between proximity checks
	BehavioralDirectives   ConfigBool   `yaml:"BehavioralDirectives"`                   // Ask for a steering directive before each NPC line
	Streaming              ConfigBool   `yaml:"Streaming"`                              // Stream NPC lines to clients
	GenerationTimeout      ConfigFloat  `yaml:"GenerationTimeout"`                      // Seconds before a generation call is abandoned
	DefaultLocation        ConfigString `yaml:"DefaultLocation"`

	RadiantEnabled  ConfigBool  `yaml:"RadiantEnabled"`
	RadiantRadius   ConfigFloat `yaml:"RadiantRadius"`
	RadiantTimeout  ConfigFloat `yaml:"RadiantTimeout"`  // Seconds before a radiant exchange is ended
	RadiantChance   ConfigInt   `yaml:"RadiantChance"`   // 1 in N chance per round for an idle NPC
	RadiantCooldown ConfigFloat `yaml:"RadiantCooldown"` // Seconds an NPC waits between radiant exchanges

}

func (c *Conversations) Validate() {
	if c.ChatRadius <= 0 {
		c.ChatRadius = 10
	}
	if c.ResponseDelay < 0 {
		c.ResponseDelay = 0
	}
	if c.ProximityCheckInterval <= 0 {
		c.ProximityCheckInterval = 10
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 60
	}
	if c.DefaultLocation == `` {
		c.DefaultLocation = `Village`
	}
	if c.RadiantRadius <= 0 {
		c.RadiantRadius = 8
	}
	if c.RadiantTimeout <= 0 {
		c.RadiantTimeout = 10
	}
	if c.RadiantChance < 1 {
		c.RadiantChance = 5
	}
	if c.RadiantCooldown <= 0 {
		c.RadiantCooldown = 120
	}
}

func defaultConversations() Conversations {
	return Conversations{
		ChatEnabled:            true,
		ChatRadius:             10,
		ResponseDelay:          1.5,
		ProximityCheckInterval: 10,
		BehavioralDirectives:   true,
		GenerationTimeout:      60,
		DefaultLocation:        `Village`,
		RadiantEnabled:         true,
		RadiantRadius:          8,
		RadiantTimeout:         10,
		RadiantChance:          5,
		RadiantCooldown:        120,
	}
}

func (c Conversations) ResponseDelayDuration() time.Duration {
	return seconds(c.ResponseDelay)
}

func (c Conversations) ProximityInterval() time.Duration {
	return seconds(c.ProximityCheckInterval)
}

func (c Conversations) GenerationTimeoutDuration() time.Duration {
	return seconds(c.GenerationTimeout)
}

func (c Conversations) RadiantTimeoutDuration() time.Duration {
	return seconds(c.RadiantTimeout)
}

func (c Conversations) RadiantCooldownDuration() time.Duration {
	return seconds(c.RadiantCooldown)
}

func GetConversationsConfig() Conversations {
	return GetConfig().Conversations
}

func seconds(f ConfigFloat) time.Duration {
	return time.Duration(float64(f) * float64(time.Second))
}
