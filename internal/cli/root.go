package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"researchkb/config"
	"researchkb/internal/adapter/chunker"
	"researchkb/internal/adapter/embedding"
	"researchkb/internal/adapter/store"
	"researchkb/internal/adapter/vectorindex"
	"researchkb/internal/domain"
	"researchkb/internal/port"
	"researchkb/internal/usecase"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "researchkb",
	Short: "Knowledge base with semantic search and research memory",
	Long: `researchkb stores text documents as embedded chunks and retrieves them
by semantic similarity. It also keeps a research memory of prior
synthesized results, retrievable by topical similarity to new queries.

Example usage:
  researchkb add --title "Deep Learning Basics" -c machine_learning notes.txt
  researchkb search -q "neural network architectures" -k 3
  researchkb research related -q "healthcare AI applications"`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if cfg.Logging.Level == "debug" {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./researchkb.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		baseURL := cfg.Embedding.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return embedding.NewOpenAICompatibleEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, baseURL)
	case "ollama":
		return embedding.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "hash", "mock":
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfiguration, cfg.Embedding.Provider)
	}
}

// stores bundles everything a command needs, with one Close for all of it.
type stores struct {
	kb       *usecase.KnowledgeBase
	research *usecase.ResearchMemory
	closers  []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(cfg *config.Config) (*stores, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	textChunker, err := chunker.NewTextChunker(cfg.Chunking.MaxChars, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	registry, err := store.NewRegistry(cfg.RegistryPath(), logger)
	if err != nil {
		return nil, err
	}

	s := &stores{closers: []func() error{registry.Close}}

	chunkIndex, err := vectorindex.Open[domain.ChunkMeta](cfg.IndexPath(), embedder.Dimension(), logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, chunkIndex.Close)

	researchIndex, err := vectorindex.Open[domain.ResearchMeta](cfg.ResearchIndexPath(), embedder.Dimension(), logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, researchIndex.Close)

	s.kb = usecase.NewKnowledgeBase(registry, chunkIndex, textChunker, embedder, logger)
	s.research = usecase.NewResearchMemory(registry, researchIndex, embedder, logger)
	return s, nil
}
