package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pdfquiz"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootFlags struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "quizgenerator",
		Short:        "Generate and take multiple choice quizzes from PDF files",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "path to YAML config (optional)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose debugging output")

	cmd.AddCommand(newGenerateCmd(flags))
	cmd.AddCommand(newPlayCmd(flags))
	return cmd
}

func newGenerateCmd(flags *rootFlags) *cobra.Command {
	var output string
	var numQuestions int

	cmd := &cobra.Command{
		Use:   "generate <file.pdf>",
		Short: "Generate questions for a PDF and print them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, true)
			if err != nil {
				return err
			}
			if numQuestions > 0 {
				cfg.LLM.NumQuestions = numQuestions
			}
			gen, err := newGenerator(cfg)
			if err != nil {
				return err
			}

			doc, err := readDocument(args[0], cfg.MaxUploadBytes())
			if err != nil {
				return err
			}
			if err := pdfquiz.ValidateDocument(doc); err != nil {
				return err
			}

			pdfquiz.VerboseLog("Starting quiz generation for %s", doc.Name)
			questions, err := gen.Generate(cmd.Context(), doc)
			if err != nil {
				pdfquiz.Logger().Errorw("generation failed", "kind", string(pdfquiz.KindOf(err)), "error", err)
				return err
			}

			out, err := json.MarshalIndent(questions, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal questions: %w", err)
			}
			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			if err := os.WriteFile(output, out, 0644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			pdfquiz.Logger().Infow("questions saved", "path", output, "count", len(questions))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file for the questions JSON (default: stdout)")
	cmd.Flags().IntVarP(&numQuestions, "questions", "n", 0, "number of questions to generate (default from config)")
	return cmd
}

func newPlayCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "play [file.pdf]",
		Short: "Take a timed quiz in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// the terminal belongs to the UI, so logs are dropped
			cfg, err := loadConfig(flags, false)
			if err != nil {
				return err
			}
			gen, err := newGenerator(cfg)
			if err != nil {
				return err
			}

			ctrl := pdfquiz.NewController(gen, pdfquiz.Options{TimeLimit: cfg.Quiz.DefaultMinutes})
			defer ctrl.Close()

			if len(args) == 1 {
				doc, err := readDocument(args[0], cfg.MaxUploadBytes())
				if err != nil {
					return err
				}
				if err := ctrl.SelectDocument(doc); err != nil {
					return err
				}
			}

			m := newModel(ctrl, cfg.MaxUploadBytes())
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

// loadConfig reads the configuration and installs the package logger.
func loadConfig(flags *rootFlags, logToStderr bool) (pdfquiz.Config, error) {
	cfg, err := pdfquiz.LoadConfig(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if flags.verbose {
		cfg.Log.Verbose = true
	}

	if logToStderr {
		log, err := pdfquiz.NewLogger(cfg.Log.Mode, cfg.Log.Verbose)
		if err != nil {
			return cfg, err
		}
		pdfquiz.SetLogger(log)
	} else {
		pdfquiz.SetLogger(zap.NewNop().Sugar())
	}
	pdfquiz.SetVerbose(cfg.Log.Verbose)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, pdfquiz.Message(err))
		return cfg, err
	}
	return cfg, nil
}

func newGenerator(cfg pdfquiz.Config) (*pdfquiz.QuizGenerator, error) {
	maker, err := pdfquiz.NewQuestionMaker(cfg.MakerConfig())
	if err != nil {
		return nil, err
	}
	return pdfquiz.NewQuizGenerator(pdfquiz.NewPDFExtractor(), maker, cfg.GeneratorOptions()), nil
}

func readDocument(path string, limit int64) (pdfquiz.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return pdfquiz.Document{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return pdfquiz.LoadDocument(filepath.Base(path), f, limit)
}
