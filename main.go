package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bedtime_story_generator/config"
	"bedtime_story_generator/generator"
	"bedtime_story_generator/logging"
	"bedtime_story_generator/render"
	"bedtime_story_generator/server"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "bedtime",
	Short:         "Generate calm bedtime stories with a judge-and-revise loop",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		logger, err = logging.New(logging.Config{
			Level:      cfg.Log.Level,
			Encoding:   cfg.Log.Encoding,
			OutputPath: cfg.Log.Output,
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var tellFormat string

var tellCmd = &cobra.Command{
	Use:   "tell [request...]",
	Short: "Tell one story on the console",
	Long: `Tell one bedtime story. The request is taken from the arguments or, when
none are given, asked for interactively.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		req := strings.Join(args, " ")
		if strings.TrimSpace(req) == "" {
			fmt.Fprintln(out, "Welcome to the Bedtime Story Generator!")
			req, err = prompt(cmd.InOrStdin(), out, "What kind of story would you like tonight? ")
			if err != nil {
				return err
			}
		}

		fmt.Fprintln(out, "\nCreating your story...")
		fmt.Fprintln(out)
		res, err := agent.Run(cmd.Context(), generator.Request(req))
		if err != nil {
			return err
		}
		return present(out, res, tellFormat)
	},
}

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the story API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent()
		if err != nil {
			return err
		}
		srv, err := server.New(agent, cfg.Server.RequestTimeout.Std(), logger)
		if err != nil {
			return err
		}
		srv.SetMaxRuns(cfg.Server.MaxRuns)
		listen := cfg.Server.Addr
		if serveAddr != "" {
			listen = serveAddr
		}
		return srv.ListenAndServe(cmd.Context(), listen, cfg.Server.RequestTimeout.Std())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (.yaml or .json; default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")
	tellCmd.Flags().StringVarP(&tellFormat, "format", "f", "text", "output format: text, markdown, html or json")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "http listen address (overrides server.addr)")
	rootCmd.AddCommand(tellCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildAgent() (*generator.Agent, error) {
	llm, err := buildLLM(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	return generator.NewAgent(llm, generator.Options{
		MaxRounds: cfg.Story.MaxRounds,
		MaxTokens: cfg.Story.MaxTokens,
	}, logger)
}

func buildLLM(c config.LLMConfig, logger *zap.Logger) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider:         c.Provider,
		Model:            c.Model,
		APIKey:           c.APIKey,
		BaseURL:          c.BaseURL,
		MaxRetries:       c.MaxRetries,
		Timeout:          c.Timeout.Std(),
		StructuredOutput: c.StructuredOutput,
	}
	switch c.Provider {
	case "openai", "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url（例如官方/网关地址）。
		if c.Provider == "deepseek" && c.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		llm, err := generator.NewOpenAILLMFromConfig(settings, logger)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case "ollama":
		llm, err := generator.NewOllamaLLMFromConfig(settings, logger)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", c.Provider)
	}
}

func prompt(in io.Reader, out io.Writer, question string) (string, error) {
	fmt.Fprint(out, question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func present(w io.Writer, res *generator.Result, format string) error {
	switch format {
	case "", "text":
		return render.Text(w, res)
	case "markdown", "md":
		_, err := io.WriteString(w, render.Markdown(res))
		return err
	case "html":
		page, err := render.Page(res)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, page)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
