package main

import (
	"context"
	"fmt"
	"os"
	"time"

	config "github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	qdrantRepo "github.com/DRSN-tech/visual-search/internal/repository/qdrant"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/clients"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/spf13/cobra"
)

// env хранит клиентов, общих для всех подкоманд.
type env struct {
	repo    *qdrantRepo.VectorRepo
	search  *config.SearchCfg
	log     logger.Logger
	closeFn func() error
}

func main() {
	var timeout time.Duration

	rootCmd := &cobra.Command{
		Use:   "vectorctl",
		Short: "Maintenance tool for the visual search collections",
		Long: `vectorctl talks to Qdrant directly using the same environment
variables as the API server (QDRANT_HOST, QDRANT_GRPC_PORT, VECTOR_SIZE, ...).

Example usage:
  vectorctl init                 # create collections and payload index
  vectorctl stats                # product collection statistics
  vectorctl list --limit 20      # first page of records
  vectorctl history <user-id>    # recent searches of a user`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for a single command")

	// run открывает клиентов, выполняет команду и закрывает соединение.
	run := func(fn func(ctx context.Context, env *env) error) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		env, err := newEnv()
		if err != nil {
			return err
		}
		defer func() {
			if err := env.closeFn(); err != nil {
				env.log.Warnf("failed to close qdrant client: %v", err)
			}
		}()

		return fn(ctx, env)
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the product and history collections if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *env) error {
				if err := env.repo.Initialize(ctx); err != nil {
					return err
				}
				fmt.Println("collections are ready")
				return nil
			})
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show product collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *env) error {
				stats, err := env.repo.GetCollectionStats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("collection:      %s\n", stats.Name)
				fmt.Printf("status:          %s\n", stats.Status)
				fmt.Printf("points:          %d\n", stats.PointCount)
				fmt.Printf("vectors:         %d\n", stats.VectorCount)
				fmt.Printf("indexed vectors: %d\n", stats.IndexedVectorCount)
				return nil
			})
		},
	}

	var (
		listLimit  int
		listOffset int
		listStats  bool
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *env) error {
				if listLimit < 1 || listLimit > env.search.MaxListLimit {
					return fmt.Errorf("--limit must be in [1, %d]", env.search.MaxListLimit)
				}
				if listOffset < 0 {
					return fmt.Errorf("--offset must not be negative")
				}

				// статистика считается по полным векторам, поэтому читаются они только по флагу
				records, err := env.repo.ListPage(ctx, listLimit, listOffset, listStats)
				if err != nil {
					return err
				}
				for _, rec := range records {
					fmt.Println(formatListLine(rec, listStats))
				}
				fmt.Printf("%d record(s)\n", len(records))
				return nil
			})
		},
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 100, "Page size")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Records to skip")
	listCmd.Flags().BoolVar(&listStats, "stats", false, "Read vectors and print per-record statistics")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a single record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *env) error {
				rec, found, err := env.repo.GetByID(ctx, args[0], false)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("record %s not found", args[0])
				}
				fmt.Printf("id:           %s\n", rec.ID)
				fmt.Printf("product:      %s\n", deref(rec.Payload.ProductName))
				fmt.Printf("filename:     %s\n", rec.Payload.Filename)
				fmt.Printf("content type: %s\n", rec.Payload.ContentType)
				fmt.Printf("model:        %s\n", rec.Payload.ModelUsed)
				fmt.Printf("asset path:   %s\n", deref(rec.Payload.AssetPath))
				fmt.Printf("uploaded at:  %s\n", rec.Payload.UploadedAt.Format(time.RFC3339))
				fmt.Printf("stats:        min=%.6f max=%.6f mean=%.6f non_zero=%d dims=%d\n",
					rec.Stats.Min, rec.Stats.Max, rec.Stats.Mean, rec.Stats.NonZeroCount, rec.Stats.Dimensions)
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record from the product collection",
		Long:  "Deletes the vector record only. The stored image object is reported and left in place.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *env) error {
				payload, found, err := env.repo.DeleteByID(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("record %s not found", args[0])
				}
				fmt.Printf("deleted %s\n", args[0])
				if path := deref(payload.AssetPath); path != "" {
					fmt.Printf("object %s was not removed from the store\n", path)
				}
				return nil
			})
		},
	}

	var historyLimit int
	historyCmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show recent searches of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *env) error {
				uc := usecase.NewRecommendationUC(env.repo, env.repo, env.search, env.log)
				entries, err := uc.GetUserSearchHistory(ctx, args[0], historyLimit)
				if err != nil {
					return err
				}
				for _, entry := range entries {
					fmt.Printf("%s  %s  %-32s  results=%d\n", entry.ID, entry.SearchedAt.Format(time.RFC3339), entry.QueryFilename, entry.ResultsCount)
				}
				fmt.Printf("%d search(es)\n", len(entries))
				return nil
			})
		},
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Entries to show")

	var recommendLimit int
	recommendCmd := &cobra.Command{
		Use:   "recommend <user-id>",
		Short: "Build recommendations from the user's search history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *env) error {
				limit := recommendLimit
				if limit == 0 {
					limit = env.search.DefaultLimit
				}

				uc := usecase.NewRecommendationUC(env.repo, env.repo, env.search, env.log)
				res, err := uc.GetUserRecommendations(ctx, args[0], limit)
				if err != nil {
					return err
				}
				for _, rec := range res.Recommendations {
					fmt.Printf("%.4f  %s  %-32s  from %s\n", rec.Hit.Score, rec.Hit.ID, deref(rec.Hit.Payload.ProductName), rec.Source.SearchFilename)
				}
				fmt.Printf("%d recommendation(s), %d seed(s), history size %d\n", len(res.Recommendations), res.SeedsUsed, res.HistorySize)
				return nil
			})
		},
	}
	recommendCmd.Flags().IntVar(&recommendLimit, "limit", 0, "Recommendations to return, 0 means the service default")

	rootCmd.AddCommand(initCmd, statsCmd, listCmd, getCmd, deleteCmd, historyCmd, recommendCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newEnv() (*env, error) {
	log := logger.NewSlogLogger()

	qdrantCfg, err := config.LoadQdrantCfg(log)
	if err != nil {
		return nil, err
	}
	searchCfg, err := config.LoadSearchCfg()
	if err != nil {
		return nil, err
	}

	client, err := clients.NewQdrantClient(qdrantCfg)
	if err != nil {
		return nil, err
	}

	return &env{
		repo:    qdrantRepo.NewVectorRepo(client, qdrantCfg, log),
		search:  searchCfg,
		log:     log,
		closeFn: client.Close,
	}, nil
}

// formatListLine печатает запись списка. Без withStats статистика не выводится: ListPage её не заполняет.
func formatListLine(rec domain.EmbeddingRecord, withStats bool) string {
	line := fmt.Sprintf("%s  %-32s  %s", rec.ID, deref(rec.Payload.ProductName), rec.Payload.UploadedAt.Format(time.RFC3339))
	if withStats {
		line += fmt.Sprintf("  dims=%d mean=%.6f non_zero=%d", rec.Stats.Dimensions, rec.Stats.Mean, rec.Stats.NonZeroCount)
	}

	return line
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
