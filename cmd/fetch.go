package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/smithy-go"
	"github.com/spf13/cobra"

	"modelfetch/internal/s3client"
	"modelfetch/pkg/utils"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the model artifact set to a local directory",
	Long: `Download every model artifact under the fixed bucket prefix to a local
directory, creating it if needed.

The bucket is listed first and each eligible object downloaded in turn.
If the caller lacks s3:ListBucket permission, the command falls back to
fetching the weight index and well-known artifact files by exact key.`,
	Example: `  # Download to the default location
  modelfetch fetch

  # Download to a specific directory
  modelfetch fetch --model-dir /srv/models/mistral

  # Supply credentials explicitly
  modelfetch fetch --aws-key AKIA... --aws-secret ... --aws-region eu-west-1`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	modelDir, _ := cmd.Flags().GetString("model-dir")

	creds, err := resolveCredentials(cmd)
	if err != nil {
		fmt.Println()
		fmt.Println("ERROR: AWS credentials not found or invalid")
		fmt.Println("Please check AWS_KEY, AWS_SECRET, and AWS_REGION")
		return err
	}

	client, err := s3client.New(creds, getEndpoint(cmd))
	if err != nil {
		utils.PrintError(err, "fetch")
		return err
	}

	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	fmt.Println("Starting model download from AWS S3...")
	fmt.Printf("Bucket: %s\n", s3client.Bucket)
	fmt.Printf("Region: %s\n", creds.Region)
	fmt.Printf("Destination: %s\n", modelDir)
	fmt.Println()

	result, err := client.FetchModel(ctx, modelDir)
	if err != nil {
		fmt.Println()
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			fmt.Printf("ERROR: AWS S3 error: %v\n", err)
		} else {
			fmt.Printf("ERROR: Failed to download model: %v\n", err)
		}
		return err
	}

	fmt.Println()
	fmt.Println("SUCCESS: Model downloaded successfully!")
	fmt.Printf("Files downloaded: %d\n", result.TotalFiles)
	fmt.Printf("Total size: %s\n", utils.FormatGiB(result.TotalSizeBytes))
	fmt.Printf("Model location: %s\n", result.Destination)

	if isVerbose(cmd) {
		return utils.PrintJSON(result)
	}
	return nil
}

func defaultModelDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "RFQ_Models", "Mistral-7B-Instruct-v0-3")
	}
	return filepath.Join(home, "Documents", "RFQ_Models", "Mistral-7B-Instruct-v0-3")
}

func init() {
	fetchCmd.Flags().String("model-dir", defaultModelDir(), "Directory to download the model to")
	fetchCmd.Flags().Int("timeout", 3600, "Timeout in seconds for the whole operation")
}
