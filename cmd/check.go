package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"modelfetch/internal/s3client"
	"modelfetch/pkg/utils"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe which S3 permissions the credentials grant",
	Long: `Check whether the resolved credentials allow listing the model prefix
and fetching individual objects, without downloading anything.

Useful to predict whether a fetch will use the listing path or has to
fall back to per-file retrieval.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	creds, err := resolveCredentials(cmd)
	if err != nil {
		utils.PrintError(err, "check")
		return err
	}

	client, err := s3client.New(creds, getEndpoint(cmd))
	if err != nil {
		utils.PrintError(err, "check")
		return err
	}

	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	result, err := client.CheckAccess(ctx)
	if err != nil {
		utils.PrintError(err, "check")
		return err
	}

	return utils.PrintJSON(result)
}

func init() {
	checkCmd.Flags().Int("timeout", 60, "Timeout in seconds for the probes")
}
