package smarthandles

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "smarthandles"

// EvaluatorConfig holds configuration parameters for the Evaluator.
type EvaluatorConfig struct {
	WasmFile     *string // Path to the evaluator WASM module
	WasmBytes    []byte  // Evaluator module bytes, used when WasmFile is nil
	CostModels   []byte  // Serialized cost models
	MaxTxExSteps uint64  // Maximum transaction execution steps
	MaxTxExMem   uint64  // Maximum transaction execution memory
	ZeroTime     uint64  // Zero time parameter
	ZeroSlot     uint64  // Zero slot parameter
	SlotLength   uint64  // Slot length parameter
}

// EngineConfig is the file and environment configuration for integrators
// that do not assemble validators by hand.
type EngineConfig struct {
	Network            string        `yaml:"network"`
	SingleScript       string        `yaml:"singleScript"       split_words:"true"`
	SingleStakeKeyHash string        `yaml:"singleStakeKeyHash" split_words:"true"`
	BatchSpendScript   string        `yaml:"batchSpendScript"   split_words:"true"`
	BatchStakeScript   string        `yaml:"batchStakeScript"   split_words:"true"`
	Logging            LoggingConfig `yaml:"logging"`
	Evaluator          struct {
		WasmFile     string `yaml:"wasmFile"     split_words:"true"`
		CostModels   string `yaml:"costModels"   split_words:"true"`
		MaxTxExSteps uint64 `yaml:"maxTxExSteps" split_words:"true"`
		MaxTxExMem   uint64 `yaml:"maxTxExMem"   split_words:"true"`
		ZeroTime     uint64 `yaml:"zeroTime"     split_words:"true"`
		ZeroSlot     uint64 `yaml:"zeroSlot"     split_words:"true"`
		SlotLength   uint64 `yaml:"slotLength"   split_words:"true"`
	} `yaml:"evaluator"`
}

func DefaultEngineConfig() *EngineConfig {
	cfg := &EngineConfig{
		Network: "preprod",
		Logging: LoggingConfig{Level: "info"},
	}
	cfg.Evaluator.MaxTxExSteps = 10_000_000_000
	cfg.Evaluator.MaxTxExMem = 14_000_000
	cfg.Evaluator.SlotLength = 1000
	return cfg
}

// LoadConfig reads an optional YAML file and then applies SMARTHANDLES_*
// environment overrides.
func LoadConfig(path string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if _, err := ParseNetwork(cfg.Network); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validators holds whichever validator handles the config defines.
type Validators struct {
	Single *SingleValidator
	Batch  *BatchValidators
}

func (c *EngineConfig) Resolve() (*Validators, error) {
	network, err := ParseNetwork(c.Network)
	if err != nil {
		return nil, err
	}
	ret := &Validators{}
	if c.SingleScript != "" {
		var stake *Credential
		if c.SingleStakeKeyHash != "" {
			hash, err := hex.DecodeString(c.SingleStakeKeyHash)
			if err != nil {
				return nil, fmt.Errorf("invalid single stake key hash: %w", err)
			}
			cred := KeyHashCredential(hash)
			stake = &cred
		}
		single, err := ResolveSingleValidator(c.SingleScript, network, stake)
		if err != nil {
			return nil, fmt.Errorf("single validator: %w", err)
		}
		ret.Single = &single
	}
	if c.BatchSpendScript != "" || c.BatchStakeScript != "" {
		batch, err := ResolveBatchValidators(c.BatchSpendScript, c.BatchStakeScript, network)
		if err != nil {
			return nil, fmt.Errorf("batch validators: %w", err)
		}
		ret.Batch = &batch
	}
	if ret.Single == nil && ret.Batch == nil {
		return nil, errors.New("no validator scripts configured")
	}
	return ret, nil
}

// EvaluatorConfig converts the evaluator section. It returns false when no
// WASM module is configured.
func (c *EngineConfig) EvaluatorConfig() (EvaluatorConfig, bool, error) {
	if c.Evaluator.WasmFile == "" {
		return EvaluatorConfig{}, false, nil
	}
	costModels, err := hex.DecodeString(c.Evaluator.CostModels)
	if err != nil {
		return EvaluatorConfig{}, false, fmt.Errorf("invalid cost models hex: %w", err)
	}
	wasmFile := c.Evaluator.WasmFile
	return EvaluatorConfig{
		WasmFile:     &wasmFile,
		CostModels:   costModels,
		MaxTxExSteps: c.Evaluator.MaxTxExSteps,
		MaxTxExMem:   c.Evaluator.MaxTxExMem,
		ZeroTime:     c.Evaluator.ZeroTime,
		ZeroSlot:     c.Evaluator.ZeroSlot,
		SlotLength:   c.Evaluator.SlotLength,
	}, true, nil
}

type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger endpoints report progress to.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return o
}
