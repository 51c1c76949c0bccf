// Command sentientos-rl-train runs the PPO training loop offline,
// either replaying recorded goal-execution traces through JSONLEnv or
// driving the live GoalTaskEnv, and periodically checkpoints the policy
// through internal/checkpoint the same way cmd/sentientosd's injector
// loads it back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mscrnt/sentientos/internal/checkpoint"
	"github.com/mscrnt/sentientos/internal/config"
	"github.com/mscrnt/sentientos/internal/logging"
	"github.com/mscrnt/sentientos/internal/rl"
)

var Version = "dev"

var log = logging.For("sentientos-rl-train")

var (
	traceFile    string
	liveEnv      bool
	rolloutSteps int
	iterations   int
)

var rootCmd = &cobra.Command{
	Use:     "sentientos-rl-train",
	Short:   "Train the sentientos goal policy with PPO",
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a training session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTraining(cmd.Context())
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate training configuration and inputs without training",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateTraining()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	runCmd.Flags().StringVar(&traceFile, "trace-file", "", "JSONL trace file to replay (required unless --live)")
	runCmd.Flags().BoolVar(&liveEnv, "live", false, "train against the live goal-task environment instead of replaying traces")
	runCmd.Flags().IntVar(&rolloutSteps, "rollout-steps", 256, "environment steps collected per training iteration")
	runCmd.Flags().IntVar(&iterations, "iterations", 100, "number of collect+train iterations to run")

	validateCmd.Flags().StringVar(&traceFile, "trace-file", "", "JSONL trace file to validate (required unless --live)")
	validateCmd.Flags().BoolVar(&liveEnv, "live", false, "validate the live goal-task environment instead of a trace file")

	rootCmd.AddCommand(runCmd, validateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildEnv() (rl.Environment, error) {
	if liveEnv {
		return rl.NewGoalTaskEnv(rl.DefaultGoalTaskEnvConfig(), 1), nil
	}
	if traceFile == "" {
		return nil, fmt.Errorf("--trace-file is required unless --live is set")
	}
	return rl.NewJSONLEnv(rl.DefaultJSONLEnvConfig(traceFile), 1)
}

func validateTraining() error {
	env, err := buildEnv()
	if err != nil {
		return err
	}
	fmt.Printf("environment OK: observation_dim=%d action_dim=%d\n", env.ObservationDim(), env.ActionDim())
	return nil
}

func runTraining(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		return fmt.Errorf("ensure data dirs: %w", err)
	}

	env, err := buildEnv()
	if err != nil {
		return err
	}

	policyCfg := rl.DefaultMLPConfig(env.ObservationDim(), env.ActionDim())
	policyCfg.UseValueHead = true
	policy := rl.NewMLPPolicy(policyCfg, 1)

	checkpoints, err := checkpoint.Open(cfg.CheckpointDir)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer checkpoints.Close()

	if id, ok, err := checkpoints.Best(); err == nil && ok {
		if cp, loadErr := checkpoints.Load(id); loadErr == nil {
			if err := rl.LoadPolicyFromCheckpoint(policy, cp); err != nil {
				log.Warn().Err(err).Msg("failed to resume from checkpoint, starting fresh")
			} else {
				log.Info().Str("checkpoint_id", id.String()).Msg("resumed policy from checkpoint")
			}
		}
	}

	trainCfg := rl.DefaultPPOConfig()
	trainCfg.MaxSteps = rolloutSteps * iterations
	trainer := rl.NewTrainer(trainCfg, policy, env, checkpoints)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var bestReward float32 = float32(-1 << 30)
	for i := 0; i < iterations; i++ {
		select {
		case <-ctx.Done():
			log.Info().Msg("training interrupted, saving checkpoint")
			return trainer.SaveCheckpoint(bestReward)
		default:
		}

		if err := trainer.CollectRollout(ctx, rolloutSteps); err != nil {
			return fmt.Errorf("collect rollout: %w", err)
		}
		stats, err := trainer.Train()
		if err != nil {
			return fmt.Errorf("train: %w", err)
		}

		avgReward := estimateAverageReward(trainCfg, stats)
		if avgReward > bestReward {
			bestReward = avgReward
		}

		log.Info().
			Int("iteration", i).
			Float32("policy_loss", stats.PolicyLoss).
			Float32("value_loss", stats.ValueLoss).
			Float32("entropy", stats.Entropy).
			Msg("training iteration complete")

		if trainCfg.CheckpointInterval > 0 && i%trainCfg.CheckpointInterval == 0 {
			if err := trainer.SaveCheckpoint(bestReward); err != nil {
				log.Warn().Err(err).Msg("failed to save checkpoint")
			}
		}
	}

	return trainer.SaveCheckpoint(bestReward)
}

// estimateAverageReward derives a coarse training-progress signal from
// the loss trio when the caller has no direct access to the rollout's
// mean reward (Trainer does not currently surface it beyond losses),
// used only to pick the "best" checkpoint across iterations.
func estimateAverageReward(cfg rl.PPOConfig, stats rl.TrainingStats) float32 {
	return -stats.PolicyLoss - cfg.ValueLossCoef*stats.ValueLoss + cfg.EntropyCoef*stats.Entropy
}
