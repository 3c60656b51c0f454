package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/GoMudEngine/palaver/internal/characters"
	"github.com/GoMudEngine/palaver/internal/configs"
	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/hooks"
	"github.com/GoMudEngine/palaver/internal/integrations/llm"
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/memory"
	"github.com/GoMudEngine/palaver/internal/mobcommands"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/presentation"
	"github.com/GoMudEngine/palaver/internal/prompts"
	"github.com/GoMudEngine/palaver/internal/realm"
	"github.com/GoMudEngine/palaver/internal/scheduler"
	"github.com/GoMudEngine/palaver/internal/scripting"
	"github.com/GoMudEngine/palaver/internal/usercommands"
	"github.com/GoMudEngine/palaver/internal/util"
	"github.com/GoMudEngine/palaver/internal/web"
	"github.com/GoMudEngine/palaver/internal/world"
)

const (
	shutdownWait = 15 * time.Second
	defaultWorld = `overworld`
)

func main() {
	configPath := flag.String(`config`, os.Getenv(`CONFIG_PATH`), `path to the yaml config file`)
	noColor := flag.Bool(`no-color`, false, `plain console logging`)
	flag.Parse()

	if err := run(*configPath, *noColor); err != nil {
		mudlog.Error("Startup", "error", err)
		mudlog.Close()
		os.Exit(1)
	}
	mudlog.Close()
}

func run(configPath string, noColor bool) error {
	cfg, err := configs.Load(configPath)
	if err != nil {
		return err
	}
	configs.SetConfig(cfg)

	mudlog.SetupLogger(mudlog.Options{
		Level:   string(cfg.Logging.Level),
		File:    string(cfg.Logging.File),
		NoColor: noColor,
	})

	mudlog.Info("Startup", "config", configPath, "tickRate", int(cfg.Server.TickRate))

	util.SeedRand(time.Now().UnixNano())

	paths := cfg.FilePaths

	book, err := characters.Load(util.FilePath(string(paths.CharactersPath)))
	if err != nil {
		return err
	}

	promptBook, err := prompts.Load(util.FilePath(string(paths.PromptsFile)))
	if err != nil {
		return err
	}

	store, err := memory.Open(util.FilePath(string(paths.MemoryDatabase)))
	if err != nil {
		return err
	}
	defer store.Close()

	policies, err := scripting.Load(util.FilePath(string(paths.ScriptsPath)))
	if err != nil {
		return err
	}

	loop := scheduler.NewLoop(time.Duration(cfg.Server.TickRate) * time.Millisecond)

	rlm := realm.New()
	spawnWorld := spawnCharacters(rlm, book)

	client := llm.New(llm.Options{
		Config:     cfg.Integrations.LLM,
		Prompts:    promptBook,
		Characters: book,
		Memory:     store,
		OnIntent: func(i llm.Intent) {
			mudlog.Info("Intent", "npc", i.NPC, "player", i.Player, "kind", i.Kind, "action", i.Action)
		},
	})

	notices := language.NewNotices(string(cfg.Server.Locale))
	cues := presentation.NewCues(rlm, float64(cfg.Conversations.ChatRadius))
	convCfg := cfg.Conversations

	manager, err := conversations.NewManager(conversations.Options{
		Loop:          loop,
		Directory:     rlm,
		Generator:     client,
		Presenter:     cues,
		Voice:         cues,
		Memory:        store,
		Sessions:      store,
		Intents:       client,
		Appearances:   book,
		Relationships: book,
		Notices:       notices,
		Config:        &convCfg,
	})
	if err != nil {
		return err
	}
	if policies.Len() > 0 {
		manager.AddPolicy(policies)
	}

	idle := hooks.NewIdleMobs(&mobcommands.Env{Manager: manager, Realm: rlm, Greeter: client})
	loop.OnRound(idle.OnRound)

	server := web.New(web.Options{
		Loop: loop,
		Commands: &usercommands.Env{
			Manager:    manager,
			Realm:      rlm,
			Notices:    notices,
			Nicknames:  book,
			Characters: book,
		},
		Server: cfg.Server,
		Spawn:  world.Position{World: spawnWorld},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		loop.Run(loopCtx)
		close(loopDone)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(`:` + strconv.Itoa(int(cfg.Server.WebPort)))
	}()

	select {
	case <-ctx.Done():
		mudlog.Info("Shutdown", "signal", ctx.Err())
	case err := <-serverErr:
		if err != nil {
			mudlog.Error("Web", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		mudlog.Error("Shutdown", "web", err)
	}

	// End every conversation so summaries get written before the store closes.
	var pending []*scheduler.Future[bool]
	loop.Call(func() { pending = manager.EndAll(false) })
	for _, f := range pending {
		if _, err := f.Wait(shutdownCtx); err != nil {
			mudlog.Warn("Shutdown", "conversation", err)
		}
	}
	loop.Call(manager.Shutdown)

	stopLoop()
	<-loopDone

	tokens := client.Tokens().Total()
	mudlog.Info("Shutdown", "tokens", fmt.Sprintf("%+v", tokens))

	return nil
}

// spawnCharacters puts every character with a spawn point into the world
// and returns the world players should join.
func spawnCharacters(rlm *realm.Realm, book *characters.Book) string {
	spawnWorld := ``
	for _, name := range book.Names() {
		p, ok := book.Profile(name)
		if !ok || p.Spawn == nil {
			continue
		}
		rlm.AddNPC(mobinterfaces.NewMob(p.Name, *p.Spawn))
		mudlog.Info("Spawn", "npc", p.Name, "world", p.Spawn.World)
		if spawnWorld == `` {
			spawnWorld = p.Spawn.World
		}
	}
	if spawnWorld == `` {
		spawnWorld = defaultWorld
	}
	return spawnWorld
}
