package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"invoice-extractor/api/internal/pipeline"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run as an AWS Lambda handler for S3 upload events",
	Long: `Run as an AWS Lambda handler. Every object in the S3 event is processed from
the input bucket and its document written to the output bucket; the function
returns {"message": "Processing complete", "results": [...]}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := stderrLogger()
		a, err := buildApp(cmd.Context(), cfgMgr.Get(), logger, buildOptions{withDB: true, requireStore: true})
		if err != nil {
			return err
		}
		defer a.Close()

		lambda.StartWithOptions(func(ctx context.Context, ev pipeline.Event) (pipeline.BatchResult, error) {
			return a.processor.HandleBatch(ctx, ev.Keys()), nil
		}, lambda.WithContext(cmd.Context()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}
