package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golatent/domain/model"
	"golatent/internal/errors"
	"golatent/internal/norm"
)

// Config represents the complete application configuration
type Config struct {
	Data  DataConfig
	Run   RunConfig
	Paths PathConfig
	Plier PlierConfig
}

// DataConfig holds the input expression matrices
type DataConfig struct {
	TrainFile string
	TestFile  string

	// MADGenes restricts the inputs to the top-N genes by mean absolute
	// deviation. Zero keeps every gene.
	MADGenes int
}

// RunConfig holds the ensemble sweep settings
type RunConfig struct {
	Algorithms    []model.Algorithm
	K             int
	NumSeeds      int
	MasterSeed    int64
	Normalization norm.Method
	Shuffle       bool
	Epsilon       float64
}

// PathConfig holds file system paths
type PathConfig struct {
	ModelsDir string
}

// PlierConfig holds the external pathway solver settings
type PlierConfig struct {
	Rscript      string
	Script       string
	PathwaysFile string
	OutputDir    string
	ForceRefresh bool
	Verbose      bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	dataConfig, err := loadDataConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load data configuration")
	}
	config.Data = *dataConfig

	runConfig, err := loadRunConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load run configuration")
	}
	config.Run = *runConfig

	config.Paths = PathConfig{
		ModelsDir: getEnvOrDefault("MODELS_DIR", "models"),
	}

	config.Plier = PlierConfig{
		Rscript:      getEnvOrDefault("PLIER_RSCRIPT", "Rscript"),
		Script:       getEnvOrDefault("PLIER_SCRIPT", ""),
		PathwaysFile: getEnvOrDefault("PATHWAYS_FILE", ""),
		OutputDir:    getEnvOrDefault("PLIER_OUTPUT_DIR", filepath.Join("data", "plier_output")),
		ForceRefresh: getEnvBoolOrDefault("PLIER_FORCE_REFRESH", false),
		Verbose:      getEnvBoolOrDefault("PLIER_VERBOSE", false),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDataConfig() (*DataConfig, error) {
	train := os.Getenv("TRAIN_FILE")
	if train == "" {
		return nil, errors.ConfigInvalid("TRAIN_FILE is required")
	}
	test := os.Getenv("TEST_FILE")
	if test == "" {
		return nil, errors.ConfigInvalid("TEST_FILE is required")
	}
	return &DataConfig{
		TrainFile: train,
		TestFile:  test,
		MADGenes:  getEnvIntOrDefault("MAD_GENES", 0),
	}, nil
}

func loadRunConfig() (*RunConfig, error) {
	names := strings.Split(getEnvOrDefault("ALGORITHMS", "pca,ica,nmf"), ",")
	algorithms := make([]model.Algorithm, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		alg, err := model.ParseAlgorithm(name)
		if err != nil {
			return nil, errors.ConfigInvalid(err.Error())
		}
		algorithms = append(algorithms, alg)
	}
	if len(algorithms) == 0 {
		return nil, errors.ConfigInvalid("ALGORITHMS selects no algorithm")
	}

	// An unknown normalization name is fatal here, before any fit work runs.
	method, err := norm.ParseMethod(getEnvOrDefault("NORMALIZATION", string(norm.MethodMinMax)))
	if err != nil {
		return nil, err
	}

	epsilon, err := getEnvFloatOrDefault("EPSILON", 0)
	if err != nil {
		return nil, err
	}

	return &RunConfig{
		Algorithms:    algorithms,
		K:             getEnvIntOrDefault("NUM_COMPONENTS", 10),
		NumSeeds:      getEnvIntOrDefault("NUM_SEEDS", 5),
		MasterSeed:    int64(getEnvIntOrDefault("MASTER_SEED", 42)),
		Normalization: method,
		Shuffle:       getEnvBoolOrDefault("SHUFFLE", false),
		Epsilon:       epsilon,
	}, nil
}

func validateConfig(config *Config) error {
	if config.Run.K < 1 {
		return errors.ConfigInvalid(fmt.Sprintf("NUM_COMPONENTS must be positive, got %d", config.Run.K))
	}
	if config.Run.NumSeeds < 1 {
		return errors.ConfigInvalid(fmt.Sprintf("NUM_SEEDS must be positive, got %d", config.Run.NumSeeds))
	}
	if config.Data.MADGenes < 0 {
		return errors.ConfigInvalid(fmt.Sprintf("MAD_GENES must be nonnegative, got %d", config.Data.MADGenes))
	}
	for _, alg := range config.Run.Algorithms {
		if alg != model.AlgPLIER {
			continue
		}
		if config.Plier.Script == "" {
			return errors.ConfigInvalid("PLIER_SCRIPT is required when the plier algorithm is selected")
		}
		if config.Plier.PathwaysFile == "" {
			return errors.ConfigInvalid("PATHWAYS_FILE is required when the plier algorithm is selected")
		}
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloatOrDefault(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s must be a number, got %q", key, value))
	}
	return parsed, nil
}

func getEnvBoolOrDefault(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
