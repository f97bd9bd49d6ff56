// Package main provides the emodiary CLI.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/born-ml/emodiary/internal/classifier"
	"github.com/born-ml/emodiary/internal/config"
	"github.com/born-ml/emodiary/internal/emotion"
	"github.com/born-ml/emodiary/internal/store"
	"github.com/born-ml/emodiary/internal/tokenizer"
	"github.com/born-ml/emodiary/internal/vocab"
	"github.com/born-ml/emodiary/onnx"
)

const version = "v0.1.0-dev"

const usage = `usage: emodiary <command> [flags]

Commands:
  version    Show version
  classify   Classify diary text (arguments, or one text per stdin line)
  tokenize   Show the WordPiece pieces and model inputs of a text
  info       Describe the model directory
  stats      Show stored emotion statistics for a month

Run "emodiary <command> -h" for command flags.
`

var errUsage = errors.New("invalid usage")

func main() {
	logger := log.New(os.Stderr, "emodiary: ", log.LstdFlags)
	err := run(os.Args[1:], os.LookupEnv, os.Stdin, os.Stdout, logger)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(args []string, lookup func(string) (string, bool), stdin io.Reader, stdout io.Writer, logger *log.Logger) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "emodiary %s\n", version)
		return nil
	case "classify":
		return runClassify(args[1:], lookup, stdin, stdout, logger)
	case "tokenize":
		return runTokenize(args[1:], lookup, stdout, logger)
	case "info":
		return runInfo(args[1:], lookup, stdout, logger)
	case "stats":
		return runStats(args[1:], lookup, stdout, logger)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

// commonFlags are shared by every command that touches the model or database.
type commonFlags struct {
	fs         *flag.FlagSet
	configPath *string
	modelDir   *string
	dbPath     *string
	workers    *int
	maxLength  *int
	jsonOut    *bool
}

func newFlagSet(name string, stdout io.Writer) *commonFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stdout)
	return &commonFlags{
		fs:         fs,
		configPath: fs.String("config", "", "path to emodiary.yaml"),
		modelDir:   fs.String("model", "", "model directory (overrides config and "+config.EnvModelDir+")"),
		dbPath:     fs.String("db", "", "SQLite database (overrides config and "+config.EnvDatabase+")"),
		workers:    fs.Int("workers", 0, "batch classification workers"),
		maxLength:  fs.Int("max-length", 0, "override the model sequence length"),
		jsonOut:    fs.Bool("json", false, "output as JSON"),
	}
}

// resolve merges the YAML file, the environment and explicitly set flags,
// in increasing precedence.
func (c *commonFlags) resolve(lookup func(string) (string, bool)) (config.ServiceConfig, error) {
	cfg, err := config.LoadServiceConfig(*c.configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}

	c.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.ModelDir = *c.modelDir
		case "db":
			cfg.Database = *c.dbPath
		case "workers":
			if *c.workers > 0 {
				cfg.Workers = *c.workers
			}
		case "max-length":
			cfg.MaxLength = *c.maxLength
		}
	})
	return cfg, nil
}

func openClassifier(cfg config.ServiceConfig, logger *log.Logger) *classifier.Classifier {
	c, err := classifier.Open(classifier.Options{
		ModelDir:  cfg.ModelDir,
		MaxLength: cfg.MaxLength,
		Workers:   cfg.Workers,
		Logger:    logger,
	})
	if err != nil && !c.Available() {
		logger.Printf("model unavailable, classifying by keywords")
	}
	return c
}

type classifyRow struct {
	DiaryID    string  `json:"diary_id,omitempty"`
	Text       string  `json:"text"`
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Fallback   string  `json:"fallback_reason,omitempty"`
}

func newClassifyRow(diaryID, text string, r classifier.Result) classifyRow {
	row := classifyRow{
		DiaryID:    diaryID,
		Text:       text,
		Emotion:    string(r.Label),
		Confidence: r.Confidence,
		Source:     string(r.Source),
	}
	if r.Err != nil {
		row.Fallback = r.Err.Error()
	}
	return row
}

func runClassify(args []string, lookup func(string) (string, bool), stdin io.Reader, stdout io.Writer, logger *log.Logger) error {
	flags := newFlagSet("classify", stdout)
	diaryID := flags.fs.String("diary", "", "store the result for this diary id (single text only)")
	diaryDate := flags.fs.String("date", "", "diary date (YYYY-MM-DD) for -diary, default today")
	if err := flags.fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.resolve(lookup)
	if err != nil {
		return err
	}
	var written time.Time
	if *diaryDate != "" {
		if *diaryID == "" {
			return fmt.Errorf("%w: -date needs -diary", errUsage)
		}
		written, err = time.Parse(time.DateOnly, *diaryDate)
		if err != nil {
			return fmt.Errorf("%w: -date: %w", errUsage, err)
		}
	}

	texts := flags.fs.Args()
	if len(texts) == 0 {
		texts, err = readLines(stdin)
		if err != nil {
			return err
		}
	}

	var rows []classifyRow
	if *diaryID != "" {
		if len(texts) != 1 {
			return fmt.Errorf("%w: -diary needs exactly one text, got %d", errUsage, len(texts))
		}
		s, err := store.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer s.Close()

		c := openClassifier(cfg, logger)
		defer c.Close()

		r := c.Classify(texts[0])
		if err := s.RecordOn(*diaryID, written, r); err != nil {
			return fmt.Errorf("record %s: %w", *diaryID, err)
		}
		rows = append(rows, newClassifyRow(*diaryID, texts[0], r))
	} else {
		c := openClassifier(cfg, logger)
		defer c.Close()

		for i, r := range c.ClassifyBatch(texts) {
			rows = append(rows, newClassifyRow("", texts[i], r))
		}
	}

	if *flags.jsonOut {
		return printJSON(stdout, rows)
	}
	for _, row := range rows {
		fmt.Fprintf(stdout, "%-12s %6.3f  %-8s  %s\n", row.Emotion, row.Confidence, row.Source, row.Text)
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

type tokenizeOutput struct {
	Pieces        []string `json:"pieces"`
	TokenIDs      []int64  `json:"token_ids"`
	AttentionMask []int64  `json:"attention_mask"`
}

func runTokenize(args []string, lookup func(string) (string, bool), stdout io.Writer, logger *log.Logger) error {
	flags := newFlagSet("tokenize", stdout)
	if err := flags.fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.resolve(lookup)
	if err != nil {
		return err
	}
	if flags.fs.NArg() == 0 {
		return fmt.Errorf("%w: tokenize needs a text argument", errUsage)
	}
	text := strings.Join(flags.fs.Args(), " ")

	v, err := tokenizer.LoadVocab(cfg.ModelDir)
	if err != nil {
		logger.Printf("vocabulary: %v", err)
		v = vocab.Empty()
	}
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		modelCfg, _ := config.LoadModelDir(cfg.ModelDir)
		maxLength = modelCfg.MaxLength
	}

	pieces := tokenizer.NewWordPiece(v).Tokenize(text)
	enc := tokenizer.NewEncoder(v, maxLength).Encode(pieces)
	out := tokenizeOutput{
		Pieces:        pieces,
		TokenIDs:      enc.TokenIDs[:enc.RealLength()],
		AttentionMask: enc.AttentionMask[:enc.RealLength()],
	}

	if *flags.jsonOut {
		return printJSON(stdout, out)
	}
	fmt.Fprintf(stdout, "pieces: %s\n", strings.Join(out.Pieces, " "))
	fmt.Fprintf(stdout, "ids:    %v\n", out.TokenIDs)
	fmt.Fprintf(stdout, "length: %d of %d\n", enc.RealLength(), enc.Len())
	return nil
}

type infoOutput struct {
	ModelDir   string          `json:"model_dir"`
	MaxLength  int             `json:"max_length"`
	NumLabels  int             `json:"num_labels"`
	InputNames []string        `json:"input_names"`
	OutputName string          `json:"output_name"`
	Labels     map[int]string  `json:"labels"`
	VocabSize  int             `json:"vocab_size"`
	Model      *onnx.ModelInfo `json:"model,omitempty"`
	Problems   []string        `json:"problems,omitempty"`
}

func runInfo(args []string, lookup func(string) (string, bool), stdout io.Writer, _ *log.Logger) error {
	flags := newFlagSet("info", stdout)
	if err := flags.fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.resolve(lookup)
	if err != nil {
		return err
	}

	out := infoOutput{ModelDir: cfg.ModelDir, Labels: make(map[int]string)}
	modelCfg, err := config.LoadModelDir(cfg.ModelDir)
	if err != nil {
		out.Problems = append(out.Problems, err.Error())
	}
	out.MaxLength = modelCfg.MaxLength
	out.NumLabels = modelCfg.NumLabels
	out.InputNames = modelCfg.InputNames
	out.OutputName = modelCfg.OutputName
	for _, i := range modelCfg.Labels.Indices() {
		out.Labels[i] = string(modelCfg.Labels[i])
	}

	if v, err := tokenizer.LoadVocab(cfg.ModelDir); err != nil {
		out.Problems = append(out.Problems, err.Error())
	} else {
		out.VocabSize = v.Size()
	}

	if info, err := onnx.GetModelInfo(filepath.Join(cfg.ModelDir, config.ModelFile)); err != nil {
		out.Problems = append(out.Problems, err.Error())
	} else {
		out.Model = info
	}

	if *flags.jsonOut {
		return printJSON(stdout, out)
	}
	fmt.Fprintf(stdout, "model dir:  %s\n", out.ModelDir)
	fmt.Fprintf(stdout, "max length: %d\n", out.MaxLength)
	fmt.Fprintf(stdout, "labels:     %d %v\n", out.NumLabels, out.Labels)
	fmt.Fprintf(stdout, "inputs:     %v -> %s\n", out.InputNames, out.OutputName)
	fmt.Fprintf(stdout, "vocab size: %d\n", out.VocabSize)
	if out.Model != nil {
		fmt.Fprintf(stdout, "opset:      %d (%s %s)\n", out.Model.OpsetVersion, out.Model.ProducerName, out.Model.ProducerVersion)
		fmt.Fprintf(stdout, "nodes:      %d, weights: %d\n", out.Model.NodeCount, out.Model.WeightCount)
		if len(out.Model.Unsupported) > 0 {
			fmt.Fprintf(stdout, "UNSUPPORTED: %s\n", strings.Join(out.Model.Unsupported, ", "))
		}
	}
	for _, p := range out.Problems {
		fmt.Fprintf(stdout, "problem:    %s\n", p)
	}
	return nil
}

type statsRow struct {
	Emotion string `json:"emotion"`
	Count   int    `json:"count"`
}

func runStats(args []string, lookup func(string) (string, bool), stdout io.Writer, _ *log.Logger) error {
	flags := newFlagSet("stats", stdout)
	now := time.Now().UTC()
	year := flags.fs.Int("year", now.Year(), "year")
	month := flags.fs.Int("month", int(now.Month()), "month (1-12)")
	if err := flags.fs.Parse(args); err != nil {
		return err
	}
	if *month < 1 || *month > 12 {
		return fmt.Errorf("%w: month %d outside 1-12", errUsage, *month)
	}
	cfg, err := flags.resolve(lookup)
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	counts, err := s.CountByMonth(*year, time.Month(*month))
	if err != nil {
		return err
	}

	rows := make([]statsRow, 0, emotion.Count())
	for _, label := range emotion.All() {
		rows = append(rows, statsRow{Emotion: string(label), Count: counts[label]})
	}

	if *flags.jsonOut {
		return printJSON(stdout, rows)
	}
	fmt.Fprintf(stdout, "%04d-%02d\n", *year, *month)
	for _, row := range rows {
		fmt.Fprintf(stdout, "%-12s %d\n", row.Emotion, row.Count)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
