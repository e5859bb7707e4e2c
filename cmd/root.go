package cmd

import (
	"github.com/spf13/cobra"

	"modelfetch/config"
)

var rootCmd = &cobra.Command{
	Use:   "modelfetch",
	Short: "Download pretrained model artifacts from S3",
	Long: `Modelfetch retrieves a pretrained language-model artifact set from S3
and materializes it on local disk.

Credentials are resolved from flags, environment variables, a .env file,
or an interactive prompt, in that order. When the caller lacks permission
to list the bucket, well-known model files are fetched by exact key.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(checkCmd)

	rootCmd.PersistentFlags().String("aws-key", "", "AWS Access Key ID")
	rootCmd.PersistentFlags().String("aws-secret", "", "AWS Secret Access Key")
	rootCmd.PersistentFlags().String("aws-region", "", "AWS Region (default: "+config.DefaultRegion+")")
	rootCmd.PersistentFlags().String("endpoint", "", "Override S3 endpoint for S3-compatible stores")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}

func resolveCredentials(cmd *cobra.Command) (*config.Credentials, error) {
	key, _ := cmd.Flags().GetString("aws-key")
	secret, _ := cmd.Flags().GetString("aws-secret")
	region, _ := cmd.Flags().GetString("aws-region")
	return config.Resolve(key, secret, region, config.TerminalSource{})
}

func getEndpoint(cmd *cobra.Command) string {
	endpoint, _ := cmd.Flags().GetString("endpoint")
	return endpoint
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}
