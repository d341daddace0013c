package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/aidoctor/go-pipeline/internal/config"
	"github.com/aidoctor/go-pipeline/internal/identity"
	"github.com/aidoctor/go-pipeline/internal/memory"
	"github.com/aidoctor/go-pipeline/internal/model"
	"github.com/aidoctor/go-pipeline/internal/pipeline"
	"github.com/aidoctor/go-pipeline/internal/prompt"
	"github.com/aidoctor/go-pipeline/internal/schema"
)

// #region main
func main() {
	cfgPath := envOr("DOCTOR_CONFIG", "doctor.yaml")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	store, err := memory.NewStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	gateway := model.NewGateway(cfg)
	prompts := prompt.NewLoader(cfg.Prompts.Dir)

	engine, err := pipeline.New(gateway, prompts, store, pipeline.WithLanguage(cfg.STT.Language))
	if err != nil {
		log.Fatalf("failed to start pipeline: %v", err)
	}

	fmt.Println("Medical pipeline ready.")
	fmt.Printf("  DB: %s | Prompts: %s | Backend: %s\n", cfg.Database.Path, cfg.Prompts.Dir, gateway.DefaultBackend())
	fmt.Println("Type a consultation (or 'help' for commands, 'quit' to exit):")

	repl(engine)
}

// #endregion main

// #region repl

type session struct {
	engine    *pipeline.Engine
	subjectID string
	backend   string
}

func repl(engine *pipeline.Engine) {
	s := &session{engine: engine}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if line == "help" {
			printHelp()
			continue
		}

		if strings.HasPrefix(line, "/") {
			s.command(line)
			continue
		}

		s.consult(line)
	}
}

func printHelp() {
	fmt.Println("  /subject <name> <age> [id]   derive and set the active subject")
	fmt.Println("  /anon                        clear the active subject")
	fmt.Println("  /backend <name>              switch chat backend")
	fmt.Println("  /extract <text>              run extraction only")
	fmt.Println("  /diagnose <symptoms>         run diagnosis only")
	fmt.Println("  /transcribe <path>           transcribe an audio file (file is deleted)")
	fmt.Println("  /save <note>                 save a note to the active subject's history")
	fmt.Println("  /query <text>                search the active subject's history")
	fmt.Println("  <anything else>              run the full consultation pipeline")
}

// #endregion repl

// #region consult

func (s *session) consult(text string) {
	result, err := s.engine.Process(context.Background(), pipeline.Request{
		Text:      text,
		SubjectID: s.subjectID,
		Backend:   s.backend,
	})
	if err != nil {
		fmt.Printf("error: %s\n", result.Error)
		return
	}

	fmt.Println()
	if result.ExtractionError != "" {
		fmt.Printf("extraction degraded: %s\n", result.ExtractionError)
	} else {
		fmt.Printf("Patient:   %s (age %d)\n", valueOr(result.PatientInfo.Name, "unknown"), result.PatientInfo.Age)
		fmt.Printf("Symptoms:  %s\n", strings.Join(result.Symptoms, ", "))
		fmt.Printf("Motive:    %s\n", result.Motive)
	}
	if result.DiagnosisError != "" {
		fmt.Printf("diagnosis degraded: %s\n", result.DiagnosisError)
	} else {
		fmt.Printf("Diagnosis: %s\n", result.Diagnosis)
		fmt.Printf("Treatment: %s\n", result.Treatment)
		fmt.Printf("Advice:    %s\n", result.Recommendations)
	}
	fmt.Println()

	md := result.Metadata
	fmt.Printf("[%s] model=%s drift=%v latency=%dms\n", md.RequestID, md.ModelName, md.DriftDetected, md.LatencyMS)
	if len(md.DriftFlags) > 0 {
		for _, f := range md.DriftFlags {
			fmt.Printf("  drift: %s\n", f)
		}
	}
}

// #endregion consult

// #region commands

func (s *session) command(line string) {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	ctx := context.Background()

	switch cmd {
	case "/subject":
		s.setSubject(rest)

	case "/anon":
		s.subjectID = ""
		fmt.Println("subject cleared")

	case "/backend":
		s.backend = rest
		fmt.Printf("backend set to %q\n", valueOr(rest, "default"))

	case "/extract":
		payload, err := s.engine.ExtractOnly(ctx, rest, s.backend)
		if err != nil {
			fmt.Printf("extract error: %v\n", err)
			return
		}
		printJSON(payload)

	case "/diagnose":
		payload, err := s.engine.DiagnoseOnly(ctx, rest, s.subjectID, s.backend)
		if err != nil {
			fmt.Printf("diagnose error: %v\n", err)
			return
		}
		printJSON(payload)

	case "/transcribe":
		text, err := s.engine.TranscribeOnly(ctx, rest, "")
		if err != nil {
			fmt.Printf("transcribe error: %v\n", err)
			return
		}
		fmt.Println(text)

	case "/save":
		if s.subjectID == "" {
			fmt.Println("no active subject; use /subject first")
			return
		}
		id, err := s.engine.SaveMemory(s.subjectID, rest, "note")
		if err != nil {
			fmt.Printf("save error: %v\n", err)
			return
		}
		fmt.Printf("saved %s\n", id)

	case "/query":
		if s.subjectID == "" {
			fmt.Println("no active subject; use /subject first")
			return
		}
		records, err := s.engine.QueryMemory(s.subjectID, rest, 5)
		if err != nil {
			fmt.Printf("query error: %v\n", err)
			return
		}
		if len(records) == 0 {
			fmt.Println("no matching history")
			return
		}
		for _, r := range records {
			fmt.Printf("  [%.3f] %s %s: %s\n", r.Score, r.CreatedAt.Format("2006-01-02"), r.ContentType, truncate(r.Content, 120))
		}

	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
}

func (s *session) setSubject(args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		fmt.Println("usage: /subject <name> <age> [id]")
		return
	}
	age, err := strconv.Atoi(fields[len(fields)-1])
	id := ""
	if err != nil && len(fields) >= 3 {
		// last field is the document id, age comes before it
		id = fields[len(fields)-1]
		age, err = strconv.Atoi(fields[len(fields)-2])
		fields = fields[:len(fields)-1]
	}
	if err != nil {
		fmt.Println("usage: /subject <name> <age> [id]")
		return
	}
	name := strings.Join(fields[:len(fields)-1], " ")

	s.subjectID = identity.SubjectID(schema.PatientInfo{Name: name, Age: age, ID: id})
	fmt.Printf("subject set to %s\n", s.subjectID)
}

// #endregion commands

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("marshal error: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// #endregion helpers
