package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"persona-mood/internal/config"
	"persona-mood/internal/domain"
	"persona-mood/internal/llm"
	"persona-mood/internal/repository"
	"persona-mood/internal/service"
)

const cliUserID = "cli"

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	if !cfg.DebugMode {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	catalog, err := repository.NewCatalogRepository(cfg.CatalogPath)
	if err != nil {
		log.Fatal(err)
	}

	llmClient := llm.NewHTTPClient(llm.HTTPClientConfig{
		BaseURL:       cfg.LLMBaseURL,
		APIKey:        cfg.LLMAPIKey,
		ModelFast:     cfg.LLMModelFast,
		ModelQuality:  cfg.LLMModelQuality,
		Temperature:   cfg.LLMTemperature,
		MaxTokens:     cfg.LLMMaxTokens,
		RatePerSecond: cfg.LLMRatePerSecond,
		Timeout:       cfg.LLMTimeout,
	}, logger)
	inference := service.NewMoodInferenceEngine(llmClient, service.InferenceConfig{
		HistoryLimit: cfg.MoodHistoryLimit,
		HistoryTurns: cfg.InferenceHistoryTurns,
	}, logger)
	tools := service.NewDevTools(catalog, inference, logger)
	turnSvc := service.NewTurnService(service.TurnServiceDeps{
		Engine:       service.NewTurnEngine(inference, logger),
		LLM:          llmClient,
		Personas:     catalog,
		Scenarios:    catalog,
		Sessions:     repository.NewMemorySessionRepository(),
		Messages:     repository.NewMemoryMessageRepository(),
		Moods:        service.NewMemoryMoodStateStore(0),
		HistoryTurns: cfg.InferenceHistoryTurns,
		Logger:       logger,
	})

	fmt.Println("===== Persona Dev Tools =====")
	printHelp()
	for {
		fmt.Print("\ndev > ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		switch cmd {
		case "help":
			printHelp()
		case "list":
			err = listCharacters(ctx, tools)
		case "rules":
			err = listRules(ctx, tools, args)
		case "test_mood":
			err = testMood(ctx, tools, args)
		case "show_prompt":
			err = showPrompt(ctx, tools, args)
		case "pipeline":
			err = moodPipeline(ctx, tools, args)
		case "compare":
			err = compareMoods(ctx, tools, args)
		case "play":
			err = playScenario(ctx, reader, turnSvc, args)
		case "exit", "quit", "salir":
			return
		default:
			fmt.Println("Comando desconocido. Usa 'help'.")
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func printHelp() {
	fmt.Println("Comandos:")
	fmt.Println("  list                                          personajes disponibles")
	fmt.Println("  rules <persona> [mood]                        reglas de comportamiento")
	fmt.Println("  test_mood <persona> <mood> <mensaje...>       documento para un mood forzado")
	fmt.Println("  show_prompt <persona> <mood> <0-1> <mensaje>  prompt completo con intensidad")
	fmt.Println("  pipeline <persona> <mensaje...>               inferencia real desde el estado inicial")
	fmt.Println("  compare <persona> <mood,mood,...> <mensaje>   reglas activas por mood")
	fmt.Println("  play <escenario>                              sesion de practica interactiva")
	fmt.Println("  exit")
}

func listCharacters(ctx context.Context, tools *service.DevTools) error {
	chars, err := tools.ListCharacters(ctx)
	if err != nil {
		return err
	}
	for _, c := range chars {
		rules := "default"
		if c.CustomRules {
			rules = "custom"
		}
		fmt.Printf("- %-10s %-10s reglas=%s traits=%s\n", c.ID, c.Name, rules, strings.Join(c.Traits, ", "))
	}
	return nil
}

func listRules(ctx context.Context, tools *service.DevTools, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("uso: rules <persona> [mood]")
	}
	mood := ""
	if len(args) > 1 {
		mood = args[1]
	}
	rules, err := tools.ListRules(ctx, args[0], mood)
	if err != nil {
		return err
	}
	fmt.Printf("Total: %d\n", len(rules))
	for i, r := range rules {
		printRule(i+1, r)
	}
	return nil
}

func printRule(n int, r domain.BehaviorRule) {
	fmt.Printf("--- Regla #%d: %s (min %.2f)\n", n, strings.ToUpper(string(r.Mood)), r.IntensityThreshold)
	fmt.Printf("    triggers: %s\n", strings.Join(r.TriggerKeywords, ", "))
	for _, b := range r.Behaviors {
		fmt.Printf("    • %s\n", b)
	}
}

func testMood(ctx context.Context, tools *service.DevTools, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("uso: test_mood <persona> <mood> <mensaje...>")
	}
	probe, err := tools.TestMood(ctx, service.ProbeRequest{
		PersonaID: args[0],
		Mood:      args[1],
		Utterance: strings.Join(args[2:], " "),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Directivas activas: %d\n\n%s", len(probe.Directives), probe.Prompt)
	return nil
}

func showPrompt(ctx context.Context, tools *service.DevTools, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("uso: show_prompt <persona> <mood> <intensidad> <mensaje...>")
	}
	intensity, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("intensidad invalida: %w", err)
	}
	probe, err := tools.ShowPrompt(ctx, service.ProbeRequest{
		PersonaID: args[0],
		Mood:      args[1],
		Intensity: intensity,
		Utterance: strings.Join(args[3:], " "),
	})
	if err != nil {
		return err
	}
	fmt.Println(probe.Prompt)
	fmt.Printf("Largo del prompt: %d caracteres\n", len(probe.Prompt))
	return nil
}

func moodPipeline(ctx context.Context, tools *service.DevTools, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("uso: pipeline <persona> <mensaje...>")
	}
	res, err := tools.MoodPipeline(ctx, args[0], strings.Join(args[1:], " "), "", nil)
	if err != nil {
		return err
	}
	fmt.Printf("Mood: %s -> %s\n", res.Prior.CurrentMood, res.State.CurrentMood)
	fmt.Printf("Intensidad: %.2f -> %.2f\n", res.Prior.Intensity, res.State.Intensity)
	fmt.Printf("Razon: %s\n", res.State.Reason)
	fmt.Printf("Triggers: %s\n", strings.Join(res.State.TriggerKeywords, ", "))
	fmt.Printf("Estrategia: %s (fallback=%v)\n", res.Strategy, res.Fallback)
	for _, d := range res.Directives {
		fmt.Printf("  • %s\n", d)
	}
	return nil
}

func compareMoods(ctx context.Context, tools *service.DevTools, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("uso: compare <persona> <mood,mood,...> <mensaje...>")
	}
	rows, err := tools.CompareMoods(ctx, args[0], strings.Join(args[2:], " "), strings.Split(args[1], ","))
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Printf("=== %s: %d reglas activas\n", strings.ToUpper(string(row.Mood)), len(row.Matched))
		if len(row.Matched) == 0 {
			fmt.Println("    sin reglas, usa la personalidad base")
		}
		for i, r := range row.Matched {
			printRule(i+1, r)
		}
	}
	return nil
}

// playScenario abre una sesion en memoria. "@persona mensaje" habla con uno,
// "todos mensaje" con todos; "status" y "fin" controlan la sesion.
func playScenario(ctx context.Context, reader *bufio.Reader, turns *service.TurnService, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("uso: play <escenario>")
	}
	view, err := turns.StartSession(ctx, cliUserID, args[0], nil)
	if err != nil {
		return err
	}
	sid := view.Session.ID
	fmt.Printf("\n🎬 %s\n%s\n\nObjetivos:\n", view.Scenario.Name, view.Scenario.Context)
	for _, o := range view.Scenario.Objectives {
		fmt.Printf("  • %s\n", o)
	}
	printMoods(view.Moods)
	fmt.Println("\n'@persona mensaje', 'todos mensaje', 'status', 'fin'")

	for {
		fmt.Print("Tu > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("leer input: %w", err)
		}
		text = strings.TrimSpace(text)
		switch {
		case text == "":
			continue
		case text == "fin":
			final, err := turns.End(ctx, cliUserID, sid)
			if err != nil {
				return err
			}
			fmt.Printf("🏁 Sesion terminada tras %d turnos.\n", final.Session.TurnCount)
			printMoods(final.Moods)
			return nil
		case text == "status":
			st, err := turns.Status(ctx, cliUserID, sid)
			if err != nil {
				return err
			}
			printMoods(st.Moods)
		case strings.HasPrefix(text, "todos "):
			replies, err := turns.Broadcast(ctx, cliUserID, sid, strings.TrimPrefix(text, "todos "))
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			for _, r := range replies {
				if r.Error != "" {
					fmt.Printf("%s: (error: %s)\n", r.PersonaID, r.Error)
					continue
				}
				fmt.Printf("%s [%s %.2f]: %s\n", r.PersonaID, r.Turn.State.CurrentMood, r.Turn.State.Intensity, r.Reply.Content)
			}
		case strings.HasPrefix(text, "@"):
			persona, msg, _ := strings.Cut(strings.TrimPrefix(text, "@"), " ")
			res, err := turns.Talk(ctx, cliUserID, sid, persona, msg)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Printf("%s [%s %.2f]: %s\n", res.Turn.PersonaID, res.Turn.State.CurrentMood, res.Turn.State.Intensity, res.Reply.Content)
		default:
			fmt.Println("Usa '@persona mensaje' o 'todos mensaje'.")
		}
	}
}

func printMoods(moods map[string]domain.MoodState) {
	for id, st := range moods {
		fmt.Printf("  %s: %s (%.2f)\n", id, st.CurrentMood, st.Intensity)
	}
}
