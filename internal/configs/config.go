package configs

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type ConfigBool bool
type ConfigInt int
type ConfigFloat float64
type ConfigString string
type ConfigSecret string

// ConfigSecret never prints its value
func (c ConfigSecret) String() string {
	if c == `` {
		return ``
	}
	return `*** REDACTED ***`
}

type Config struct {
	Server        Server        `yaml:"Server"`
	Conversations Conversations `yaml:"Conversations"`
	Integrations  Integrations  `yaml:"Integrations"`
	FilePaths     FilePaths     `yaml:"FilePaths"`
	Logging       Logging       `yaml:"Logging"`

	validated bool
}

type Server struct {
	TickRate   ConfigInt    `yaml:"TickRate"` // Milliseconds between rounds of the world loop
	WebPort    ConfigInt    `yaml:"WebPort" env:"PALAVER_WEB_PORT"`
	Locale     ConfigString `yaml:"Locale"`
	Admins     []string     `yaml:"Admins"`                               // Player names allowed to use the conv commands
	AdminToken ConfigSecret `yaml:"AdminToken" env:"PALAVER_ADMIN_TOKEN"` // Bearer token for the conversation API, open when empty
}

// IsAdmin matches names case-insensitively.
func (s Server) IsAdmin(name string) bool {
	for _, a := range s.Admins {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

type FilePaths struct {
	DataFiles      ConfigString `yaml:"DataFiles" env:"PALAVER_DATA_FILES"`
	PromptsFile    ConfigString `yaml:"PromptsFile"`
	CharactersPath ConfigString `yaml:"CharactersPath"`
	ScriptsPath    ConfigString `yaml:"ScriptsPath"`
	MemoryDatabase ConfigString `yaml:"MemoryDatabase" env:"PALAVER_MEMORY_DB"`
}

type Logging struct {
	Level ConfigString `yaml:"Level" env:"PALAVER_LOG_LEVEL"`
	File  ConfigString `yaml:"File"`
}

var (
	configData     = Config{}
	configDataLock sync.RWMutex
)

func (s *Server) Validate() {
	if s.TickRate < 1 {
		s.TickRate = 50
	}
	if s.WebPort < 1 {
		s.WebPort = 8080
	}
	if s.Locale == `` {
		s.Locale = `en`
	}
}

func (f *FilePaths) Validate() {
	if f.DataFiles == `` {
		f.DataFiles = `_datafiles`
	}
	if f.PromptsFile == `` {
		f.PromptsFile = f.DataFiles + `/prompts.yaml`
	}
	if f.CharactersPath == `` {
		f.CharactersPath = f.DataFiles + `/characters`
	}
	if f.ScriptsPath == `` {
		f.ScriptsPath = f.DataFiles + `/scripts`
	}
	if f.MemoryDatabase == `` {
		f.MemoryDatabase = f.DataFiles + `/memory.db`
	}
}

func (l *Logging) Validate() {
	if l.Level == `` {
		l.Level = `info`
	}
}

func (c *Config) Validate() {
	c.Server.Validate()
	c.Conversations.Validate()
	c.Integrations.Validate()
	c.FilePaths.Validate()
	c.Logging.Validate()
	c.validated = true
}

// Default returns a validated configuration with every default applied.
func Default() Config {
	c := Config{
		Conversations: defaultConversations(),
		Integrations:  defaultIntegrations(),
	}
	c.Validate()
	return c
}

// Load reads a yaml config file over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	c := Default()

	if path != `` {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, errors.Wrap(err, `config: `+path)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, errors.Wrap(err, `config: `+path)
		}
	}

	if err := applyEnv(reflect.ValueOf(&c).Elem()); err != nil {
		return c, err
	}

	c.Validate()
	return c, nil
}

// SetConfig replaces the active configuration.
func SetConfig(c Config) {
	if !c.validated {
		c.Validate()
	}
	configDataLock.Lock()
	configData = c
	configDataLock.Unlock()
}

func GetConfig() Config {
	configDataLock.Lock()
	defer configDataLock.Unlock()

	if !configData.validated {
		configData = Default()
	}
	return configData
}

func GetServerConfig() Server {
	return GetConfig().Server
}

func GetFilePathsConfig() FilePaths {
	return GetConfig().FilePaths
}

func GetLoggingConfig() Logging {
	return GetConfig().Logging
}

// applyEnv walks the struct and overwrites any field tagged with env:"NAME"
// when that environment variable is set.
func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)

		if !sf.IsExported() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field); err != nil {
				return err
			}
			continue
		}

		envName := sf.Tag.Get(`env`)
		if envName == `` {
			continue
		}

		envVal, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(envVal)
		case reflect.Bool:
			b, err := strconv.ParseBool(strings.TrimSpace(envVal))
			if err != nil {
				return errors.Wrap(err, `env `+envName)
			}
			field.SetBool(b)
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(strings.TrimSpace(envVal), 10, 64)
			if err != nil {
				return errors.Wrap(err, `env `+envName)
			}
			field.SetInt(n)
		case reflect.Float64:
			f, err := strconv.ParseFloat(strings.TrimSpace(envVal), 64)
			if err != nil {
				return errors.Wrap(err, `env `+envName)
			}
			field.SetFloat(f)
		}
	}
	return nil
}
