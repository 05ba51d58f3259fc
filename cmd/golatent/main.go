package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"golatent/app"
	"golatent/domain/expr"
	"golatent/domain/model"
	"golatent/internal"
	"golatent/internal/config"
	"golatent/internal/storage"
	"golatent/internal/testkit"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "golatent",
		Short: "Compression ensembles over gene expression matrices",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newSimulateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var k int
	var numSeeds int
	var masterSeed int64
	var shuffle bool
	var algorithms string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured ensemble sweep",
		Long: `Fit the selected compression algorithms across multiple seeds, persist
every model and write the aggregate reconstruction table.

Input matrices and paths come from the environment (or a .env file); the
flags override the sweep dimensions.

Example: golatent run --num-components 10 --num-seeds 5 --shuffle`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Missing .env is fine, the environment may be set directly.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("num-components") {
				cfg.Run.K = k
			}
			if cmd.Flags().Changed("num-seeds") {
				cfg.Run.NumSeeds = numSeeds
			}
			if cmd.Flags().Changed("master-seed") {
				cfg.Run.MasterSeed = masterSeed
			}
			if cmd.Flags().Changed("shuffle") {
				cfg.Run.Shuffle = shuffle
			}
			if cmd.Flags().Changed("algorithms") {
				cfg.Run.Algorithms = cfg.Run.Algorithms[:0]
				for _, name := range strings.Split(algorithms, ",") {
					alg, err := model.ParseAlgorithm(strings.TrimSpace(name))
					if err != nil {
						return err
					}
					cfg.Run.Algorithms = append(cfg.Run.Algorithms, alg)
				}
			}

			log := internal.NewDefaultLogger()
			service := app.NewEnsembleService(cfg, log)
			result, err := service.Run(cmd.Context())
			if err != nil {
				return err
			}
			if len(result.Failures) > 0 {
				return fmt.Errorf("%d of the variant fits failed", len(result.Failures))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&k, "num-components", 10, "Latent dimensionality")
	cmd.Flags().IntVar(&numSeeds, "num-seeds", 5, "Number of seeds per algorithm")
	cmd.Flags().Int64Var(&masterSeed, "master-seed", 42, "Master seed the per-fit seeds derive from")
	cmd.Flags().BoolVar(&shuffle, "shuffle", false, "Shuffle gene values per sample (negative control)")
	cmd.Flags().StringVar(&algorithms, "algorithms", "", "Comma-separated algorithm list (pca,ica,nmf,plier)")

	return cmd
}

func newSimulateCmd() *cobra.Command {
	cfg := testkit.DefaultExpressionConfig()
	var outDir string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate a synthetic train/test expression pair",
		Long: `Generate module-structured synthetic expression data and write it as
TSV files (train, test and a matching pathway prior) for local runs.

Example: golatent simulate --samples 100 --genes 200 --out-dir data`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			pair := testkit.GeneratePair(cfg)

			trainPath := filepath.Join(outDir, "train_expression.tsv")
			if err := writeMatrix(trainPath, pair.Train); err != nil {
				return err
			}
			testPath := filepath.Join(outDir, "test_expression.tsv")
			if err := writeMatrix(testPath, pair.Test); err != nil {
				return err
			}
			pathways, err := testkit.WritePathwaysFile(outDir, pair.Train.GeneIDs)
			if err != nil {
				return err
			}

			fmt.Printf("wrote %s (%dx%d), %s (%dx%d), %s\n",
				trainPath, pair.Train.NumSamples(), pair.Train.NumGenes(),
				testPath, pair.Test.NumSamples(), pair.Test.NumGenes(),
				pathways)
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.Samples, "samples", cfg.Samples, "Training sample count")
	cmd.Flags().IntVar(&cfg.TestSamples, "test-samples", cfg.TestSamples, "Test sample count")
	cmd.Flags().IntVar(&cfg.Genes, "genes", cfg.Genes, "Gene count")
	cmd.Flags().IntVar(&cfg.Modules, "modules", cfg.Modules, "Latent module count")
	cmd.Flags().Float64Var(&cfg.Noise, "noise", cfg.Noise, "Per-gene noise level")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Generator seed")
	cmd.Flags().StringVar(&outDir, "out-dir", "data", "Output directory")

	return cmd
}

func writeMatrix(path string, m *expr.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return storage.WriteMatrixTSV(f, m.SampleIDs, m.GeneIDs, m.Data)
}
