// Command indelclass classifies coding indels in tumor RNA-seq as
// somatic, germline, or artifact.
//
// Usage:
//
//	indelclass classify calls.vcf --bam tumor.bam --ref genome.fa --data-dir /data/indelclass
//	indelclass prepare dbsnp dbsnp.vcf.gz --data-dir /data/indelclass --ref genome.fa
//	indelclass recur sample1.out.vcf sample2.out.vcf --ref genome.fa
//	indelclass config show
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cormorant-bio/indelclass/internal/features"
	"github.com/cormorant-bio/indelclass/internal/pipeline"
)

// Exit codes.
const (
	ExitSuccess = 0
	ExitError   = 1
)

// Version information (set via ldflags at build time).
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var missing *pipeline.MissingResourceError
		var schema *features.SchemaMismatchError
		switch {
		case errors.As(err, &missing):
			fmt.Fprintln(os.Stderr, "Hint: check the path, or build the bundle with 'indelclass prepare'")
		case errors.As(err, &schema):
			fmt.Fprintln(os.Stderr, "Hint: the model bundle was built for a different release; download matching models")
		}
		return ExitError
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "indelclass",
		Short: "Somatic indel classifier for tumor RNA-seq",
		Long: `indelclass separates somatic coding indels from germline variants and
alignment artifacts in tumor RNA-seq calls, using read-level evidence from
the BAM and a random forest trained on curated tumor cohorts.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default $HOME/.indelclass.yaml)")
	pf.Bool("verbose", false, "enable debug logging")

	root.AddCommand(
		newClassifyCmd(),
		newPrepareCmd(),
		newRecurCmd(),
		newConfigCmd(),
	)
	return root
}

// initConfig wires viper to the config file and INDELCLASS_* environment
// variables. Flag values, bound per command, take precedence over both.
func initConfig(cmd *cobra.Command) error {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".indelclass")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("INDELCLASS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindFlags(cmd, "verbose")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindFlags binds the named flags of cmd to viper keys of the same name.
// Binding happens at run time rather than construction time so sibling
// commands sharing a flag name do not clobber each other's binding.
func bindFlags(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = viper.BindPFlag(name, f)
		}
	}
}

// newLogger builds a console logger writing to stderr, so stdout stays
// reserved for VCF output.
func newLogger(verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}
